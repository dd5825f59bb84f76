package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Shoffly/dealer-visits/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockVisitStore struct {
	mock.Mock
}

func (m *mockVisitStore) InsertVisit(ctx context.Context, v *models.Visit) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockVisitStore) GetVisit(ctx context.Context, id string) (*models.Visit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Visit), args.Error(1)
}
func (m *mockVisitStore) ConfirmVisit(ctx context.Context, id, by, note string, at time.Time) (int64, error) {
	args := m.Called(ctx, id, by, note, at)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockVisitStore) CancelVisit(ctx context.Context, id, by, reason string, at time.Time) (int64, error) {
	args := m.Called(ctx, id, by, reason, at)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockVisitStore) GetVisitsByStatus(ctx context.Context, statuses ...string) ([]*models.Visit, error) {
	callArgs := make([]interface{}, 0, len(statuses)+1)
	callArgs = append(callArgs, ctx)
	for _, status := range statuses {
		callArgs = append(callArgs, status)
	}
	args := m.Called(callArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Visit), args.Error(1)
}

type mockFleetStore struct {
	mock.Mock
}

func (m *mockFleetStore) GetCarLocations(ctx context.Context, day time.Time) ([]models.CarStatus, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CarStatus), args.Error(1)
}
func (m *mockFleetStore) GetCarLocation(ctx context.Context, car string, day time.Time) (string, bool, error) {
	args := m.Called(ctx, car, day)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *mockFleetStore) GetCarNames(ctx context.Context, day time.Time) ([]string, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *mockFleetStore) GetDealers(ctx context.Context) ([]models.Dealer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dealer), args.Error(1)
}
func (m *mockFleetStore) GetMovementQueue(ctx context.Context) ([]models.MovementRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MovementRequest), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, visitID string, v *models.Visit) error {
	return m.Called(ctx, tt, visitID, v).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func validDraft() *models.VisitDraft {
	return &models.VisitDraft{
		CarName:           "Kia Sportage 2021",
		DealerName:        "Auto Star",
		DealerPhoneNumber: "+201001234567",
		VisitDate:         time.Now().AddDate(0, 0, 3),
		TimeSlot:          "10:00 - 11:00",
		AgentName:         "Sara",
	}
}

func TestVisitService(t *testing.T) {
	store := new(mockVisitStore)
	fleet := new(mockFleetStore)
	bus := new(mockEventBus)
	worker := new(mockWorker)
	notifier := new(mockNotifier)
	logger := zerolog.New(io.Discard)
	svc := NewVisitService(store, fleet, bus, worker, nil, notifier, 30, 30*time.Second, &logger)
	ctx := context.Background()

	t.Run("ValidateVisitDate", func(t *testing.T) {
		now := time.Now()

		assert.Error(t, svc.ValidateVisitDate(now.AddDate(0, 0, -2)))
		assert.Error(t, svc.ValidateVisitDate(now.AddDate(0, 0, 31)))
		assert.NoError(t, svc.ValidateVisitDate(now.AddDate(0, 0, 5)))

		// Today's local calendar date, the way the HTTP layer parses it:
		// midnight UTC. Must be accepted regardless of the server zone.
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		assert.NoError(t, svc.ValidateVisitDate(today))
	})

	t.Run("OpenVisit", func(t *testing.T) {
		draft := validDraft()

		fleet.On("GetCarLocation", ctx, draft.CarName, draft.VisitDate).Return("October Hub", true, nil).Once()
		store.On("InsertVisit", ctx, mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		bus.On("PublishJSON", "visit_opened", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", mock.AnythingOfType("string"), mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		visit, err := svc.OpenVisit(ctx, draft)
		require.NoError(t, err)
		assert.NotEmpty(t, visit.ID)
		assert.Equal(t, models.StatusOpen, visit.Status)
		assert.Equal(t, "October Hub", visit.CarLocation)
		assert.Equal(t, draft.AgentName, visit.OpenedBy)
		assert.False(t, visit.OpenedAt.IsZero())
		store.AssertExpectations(t)
		fleet.AssertExpectations(t)
	})

	t.Run("OpenVisitUnknownLocation", func(t *testing.T) {
		draft := validDraft()

		fleet.On("GetCarLocation", ctx, draft.CarName, draft.VisitDate).Return("", false, nil).Once()
		store.On("InsertVisit", ctx, mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		bus.On("PublishJSON", "visit_opened", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", mock.AnythingOfType("string"), mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		visit, err := svc.OpenVisit(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, models.UnknownLocation, visit.CarLocation)
	})

	t.Run("OpenVisitLocationLookupError", func(t *testing.T) {
		draft := validDraft()

		fleet.On("GetCarLocation", ctx, draft.CarName, draft.VisitDate).Return("", false, errors.New("db down")).Once()
		store.On("InsertVisit", ctx, mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		bus.On("PublishJSON", "visit_opened", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", mock.AnythingOfType("string"), mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		visit, err := svc.OpenVisit(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, models.UnknownLocation, visit.CarLocation)
	})

	t.Run("OpenVisitKeepsProvidedLocation", func(t *testing.T) {
		draft := validDraft()
		draft.CarLocation = "Nasr City Hub"

		store.On("InsertVisit", ctx, mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		bus.On("PublishJSON", "visit_opened", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", mock.AnythingOfType("string"), mock.AnythingOfType("*models.Visit")).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		visit, err := svc.OpenVisit(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, "Nasr City Hub", visit.CarLocation)
	})

	t.Run("OpenVisitValidation", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*models.VisitDraft)
			field  string
		}{
			{"MissingCarName", func(d *models.VisitDraft) { d.CarName = " " }, "car_name"},
			{"MissingDealerName", func(d *models.VisitDraft) { d.DealerName = "" }, "dealer_name"},
			{"MissingDealerPhone", func(d *models.VisitDraft) { d.DealerPhoneNumber = "" }, "dealer_phone_number"},
			{"MissingAgentName", func(d *models.VisitDraft) { d.AgentName = "" }, "agent_name"},
			{"BadTimeSlot", func(d *models.VisitDraft) { d.TimeSlot = "09:30 - 10:30" }, "time_slot"},
			{"PastDate", func(d *models.VisitDraft) { d.VisitDate = time.Now().AddDate(0, 0, -2) }, "visit_date"},
			{"TooFarDate", func(d *models.VisitDraft) { d.VisitDate = time.Now().AddDate(0, 0, 45) }, "visit_date"},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				draft := validDraft()
				tc.mutate(draft)

				_, err := svc.OpenVisit(ctx, draft)
				require.Error(t, err)

				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.field, verr.Field)
			})
		}
	})

	t.Run("OpenVisitStoreError", func(t *testing.T) {
		draft := validDraft()
		draft.CarLocation = "October Hub"

		store.On("InsertVisit", ctx, mock.AnythingOfType("*models.Visit")).Return(errors.New("disk full")).Once()

		_, err := svc.OpenVisit(ctx, draft)
		require.Error(t, err)

		var serr *StoreError
		assert.ErrorAs(t, err, &serr)
	})

	t.Run("ConfirmVisitApplied", func(t *testing.T) {
		visit := &models.Visit{ID: "v1", CarName: "Kia Sportage 2021", DealerName: "Auto Star", Status: models.StatusConfirmed}

		store.On("ConfirmVisit", ctx, "v1", "manager", "call first", mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
		store.On("GetVisit", ctx, "v1").Return(visit, nil).Once()
		bus.On("PublishJSON", "visit_confirmed", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "update_status", "v1", visit).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		outcome, err := svc.ConfirmVisit(ctx, "v1", "manager", "call first")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, outcome)
		store.AssertExpectations(t)
	})

	t.Run("ConfirmVisitConflict", func(t *testing.T) {
		store.On("ConfirmVisit", ctx, "v2", "manager", "", mock.AnythingOfType("time.Time")).Return(int64(0), nil).Once()

		outcome, err := svc.ConfirmVisit(ctx, "v2", "manager", "")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeConflict, outcome)
		store.AssertExpectations(t)
	})

	t.Run("ConfirmVisitMissingActor", func(t *testing.T) {
		_, err := svc.ConfirmVisit(ctx, "v3", "", "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "confirmed_by", verr.Field)
	})

	t.Run("ConfirmVisitStoreError", func(t *testing.T) {
		store.On("ConfirmVisit", ctx, "v4", "manager", "", mock.AnythingOfType("time.Time")).Return(int64(0), errors.New("locked")).Once()

		_, err := svc.ConfirmVisit(ctx, "v4", "manager", "")
		var serr *StoreError
		require.ErrorAs(t, err, &serr)
	})

	t.Run("CancelVisitApplied", func(t *testing.T) {
		visit := &models.Visit{ID: "v5", CarName: "Kia Sportage 2021", DealerName: "Auto Star", Status: models.StatusCancelled}

		store.On("CancelVisit", ctx, "v5", "ops", "Car Sold", mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
		store.On("GetVisit", ctx, "v5").Return(visit, nil).Once()
		bus.On("PublishJSON", "visit_cancelled", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "update_status", "v5", visit).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		outcome, err := svc.CancelVisit(ctx, "v5", "ops", "Car Sold")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, outcome)
	})

	t.Run("CancelVisitConflict", func(t *testing.T) {
		store.On("CancelVisit", ctx, "v6", "ops", "Car Sold", mock.AnythingOfType("time.Time")).Return(int64(0), nil).Once()

		outcome, err := svc.CancelVisit(ctx, "v6", "ops", "Car Sold")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeConflict, outcome)
	})

	t.Run("CancelVisitWithoutReason", func(t *testing.T) {
		visit := &models.Visit{ID: "v7", CarName: "Kia Sportage 2021", DealerName: "Auto Star", Status: models.StatusCancelled}

		store.On("CancelVisit", ctx, "v7", "ops", "", mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
		store.On("GetVisit", ctx, "v7").Return(visit, nil).Once()
		bus.On("PublishJSON", "visit_cancelled", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "update_status", "v7", visit).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(nil).Once()

		outcome, err := svc.CancelVisit(ctx, "v7", "ops", "")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, outcome)
	})

	t.Run("CancelVisitMissingCancelledBy", func(t *testing.T) {
		_, err := svc.CancelVisit(ctx, "v7", " ", "Car Sold")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "cancelled_by", verr.Field)
	})

	t.Run("ListActiveVisits", func(t *testing.T) {
		visits := []*models.Visit{{ID: "a", Status: models.StatusConfirmed}, {ID: "b", Status: models.StatusOpen}}

		store.On("GetVisitsByStatus", ctx, models.StatusOpen, models.StatusConfirmed).Return(visits, nil).Once()

		got, err := svc.ListActiveVisits(ctx)
		require.NoError(t, err)
		assert.Equal(t, visits, got)
		store.AssertExpectations(t)
	})

	t.Run("GetVisit", func(t *testing.T) {
		visit := &models.Visit{ID: "v8"}
		store.On("GetVisit", ctx, "v8").Return(visit, nil).Once()

		got, err := svc.GetVisit(ctx, "v8")
		require.NoError(t, err)
		assert.Equal(t, visit, got)
	})

	t.Run("NotifierFailureDoesNotPropagate", func(t *testing.T) {
		visit := &models.Visit{ID: "v9", Status: models.StatusConfirmed}

		store.On("ConfirmVisit", ctx, "v9", "manager", "", mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
		store.On("GetVisit", ctx, "v9").Return(visit, nil).Once()
		bus.On("PublishJSON", "visit_confirmed", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "update_status", "v9", visit).Return(nil).Once()
		notifier.On("Notify", ctx, mock.AnythingOfType("string")).Return(errors.New("telegram down")).Once()

		outcome, err := svc.ConfirmVisit(ctx, "v9", "manager", "")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, outcome)
	})
}

func TestVisitServiceCaching(t *testing.T) {
	store := new(mockVisitStore)
	logger := zerolog.New(io.Discard)
	cache := newFakeCache()
	svc := NewVisitService(store, nil, nil, nil, cache, nil, 30, 30*time.Second, &logger)
	ctx := context.Background()

	visits := []*models.Visit{{ID: "a", Status: models.StatusOpen}}
	store.On("GetVisitsByStatus", ctx, models.StatusOpen, models.StatusConfirmed).Return(visits, nil).Once()

	// First call misses and fills the cache, second is served from it.
	got, err := svc.ListActiveVisits(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = svc.ListActiveVisits(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	store.AssertExpectations(t)

	// A transition invalidates the snapshot.
	store.On("ConfirmVisit", ctx, "a", "manager", "", mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
	store.On("GetVisit", ctx, "a").Return(visits[0], nil).Once()

	outcome, err := svc.ConfirmVisit(ctx, "a", "manager", "")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)

	_, found, _ := cache.Get(ctx, activeVisitsCacheKey)
	assert.False(t, found)
}
