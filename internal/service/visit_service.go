package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Shoffly/dealer-visits/internal/domain"
	"github.com/Shoffly/dealer-visits/internal/events"
	"github.com/Shoffly/dealer-visits/internal/metrics"
	"github.com/Shoffly/dealer-visits/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const activeVisitsCacheKey = "active_visits"

// VisitService drives the visit lifecycle: open, confirm, cancel.
// Transitions are conditional at the store level; a lost race comes back
// as OutcomeConflict, never as an error.
type VisitService struct {
	store          domain.VisitStore
	fleet          domain.FleetStore
	eventBus       domain.EventPublisher
	sheetsWorker   domain.SyncWorker
	cache          domain.SnapshotCache
	notifier       domain.Notifier
	maxAdvanceDays int
	activeTTL      time.Duration
	logger         *zerolog.Logger
}

func NewVisitService(
	store domain.VisitStore,
	fleet domain.FleetStore,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	cache domain.SnapshotCache,
	notifier domain.Notifier,
	maxAdvanceDays int,
	activeTTL time.Duration,
	logger *zerolog.Logger,
) *VisitService {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = models.MaxVisitAdvanceDays
	}
	if activeTTL <= 0 {
		activeTTL = models.ActiveVisitsCacheTTL * time.Second
	}
	return &VisitService{
		store:          store,
		fleet:          fleet,
		eventBus:       eventBus,
		sheetsWorker:   sheetsWorker,
		cache:          cache,
		notifier:       notifier,
		maxAdvanceDays: maxAdvanceDays,
		activeTTL:      activeTTL,
		logger:         logger,
	}
}

// ValidateVisitDate rejects dates in the past and dates beyond the
// scheduling window.
func (s *VisitService) ValidateVisitDate(date time.Time) error {
	// Build today from the local calendar date; Truncate would snap to
	// the UTC day and reject valid dates west of Greenwich.
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return NewValidationError("visit_date", "date is in the past")
	}
	maxDate := today.AddDate(0, 0, s.maxAdvanceDays)
	if date.After(maxDate) {
		return NewValidationError("visit_date", fmt.Sprintf("date is more than %d days ahead", s.maxAdvanceDays))
	}
	return nil
}

func (s *VisitService) validateDraft(draft *models.VisitDraft) error {
	if strings.TrimSpace(draft.CarName) == "" {
		return NewValidationError("car_name", "required")
	}
	if strings.TrimSpace(draft.DealerName) == "" {
		return NewValidationError("dealer_name", "required")
	}
	if strings.TrimSpace(draft.DealerPhoneNumber) == "" {
		return NewValidationError("dealer_phone_number", "required")
	}
	if strings.TrimSpace(draft.AgentName) == "" {
		return NewValidationError("agent_name", "required")
	}
	if !models.IsTimeSlot(draft.TimeSlot) {
		return NewValidationError("time_slot", "not an allowed slot")
	}
	return s.ValidateVisitDate(draft.VisitDate)
}

// OpenVisit validates the draft, snapshots the car location and inserts
// the visit in the open status. The agent name is duplicated into
// opened_by; callers cannot set the two apart.
func (s *VisitService) OpenVisit(ctx context.Context, draft *models.VisitDraft) (*models.Visit, error) {
	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}

	location := draft.CarLocation
	if location == "" {
		location = s.resolveCarLocation(ctx, draft.CarName, draft.VisitDate)
	}

	now := time.Now()
	visit := &models.Visit{
		ID:                uuid.New().String(),
		CarName:           draft.CarName,
		RequestID:         draft.RequestID,
		DealerName:        draft.DealerName,
		DealerPhoneNumber: draft.DealerPhoneNumber,
		VisitDate:         draft.VisitDate,
		TimeSlot:          draft.TimeSlot,
		CarLocation:       location,
		AgentName:         draft.AgentName,
		Status:            models.StatusOpen,
		Notes:             draft.Notes,
		OpenedBy:          draft.AgentName,
		OpenedAt:          now,
		CreatedAt:         now,
	}

	if err := s.store.InsertVisit(ctx, visit); err != nil {
		return nil, newStoreError("insert visit", err)
	}

	metrics.IncVisitOpened()
	s.publishEvent(events.EventVisitOpened, visit, visit.OpenedBy, "")
	s.enqueueSync(ctx, "upsert", visit)
	s.invalidateActive(ctx)
	s.notify(ctx, fmt.Sprintf("New visit: %s for %s on %s %s",
		visit.CarName, visit.DealerName, visit.VisitDate.Format("2006-01-02"), visit.TimeSlot))

	return visit, nil
}

// ConfirmVisit moves an open visit to confirmed. It returns
// OutcomeConflict without error when the visit is not in the open
// status anymore.
func (s *VisitService) ConfirmVisit(ctx context.Context, id, confirmedBy, note string) (models.Outcome, error) {
	if strings.TrimSpace(confirmedBy) == "" {
		return models.OutcomeConflict, NewValidationError("confirmed_by", "required")
	}

	affected, err := s.store.ConfirmVisit(ctx, id, confirmedBy, note, time.Now())
	if err != nil {
		metrics.IncVisitTransition("confirm", "error")
		return models.OutcomeConflict, newStoreError("confirm visit", err)
	}

	if affected == 0 {
		metrics.IncVisitTransition("confirm", models.OutcomeConflict.String())
		s.logger.Warn().Str("visit_id", id).Msg("confirm skipped, visit not open")
		return models.OutcomeConflict, nil
	}

	metrics.IncVisitTransition("confirm", models.OutcomeApplied.String())
	s.afterTransition(ctx, id, events.EventVisitConfirmed, confirmedBy, "")
	return models.OutcomeApplied, nil
}

// CancelVisit moves an open or confirmed visit to cancelled. Cancelled
// is terminal; a second cancel comes back as OutcomeConflict. The reason
// is optional, an empty one leaves the notes untouched.
func (s *VisitService) CancelVisit(ctx context.Context, id, cancelledBy, reason string) (models.Outcome, error) {
	if strings.TrimSpace(cancelledBy) == "" {
		return models.OutcomeConflict, NewValidationError("cancelled_by", "required")
	}

	affected, err := s.store.CancelVisit(ctx, id, cancelledBy, reason, time.Now())
	if err != nil {
		metrics.IncVisitTransition("cancel", "error")
		return models.OutcomeConflict, newStoreError("cancel visit", err)
	}

	if affected == 0 {
		metrics.IncVisitTransition("cancel", models.OutcomeConflict.String())
		s.logger.Warn().Str("visit_id", id).Msg("cancel skipped, visit already terminal")
		return models.OutcomeConflict, nil
	}

	metrics.IncVisitTransition("cancel", models.OutcomeApplied.String())
	s.afterTransition(ctx, id, events.EventVisitCancelled, cancelledBy, reason)
	return models.OutcomeApplied, nil
}

func (s *VisitService) GetVisit(ctx context.Context, id string) (*models.Visit, error) {
	return s.store.GetVisit(ctx, id)
}

// ListActiveVisits returns open and confirmed visits, newest first,
// serving from the snapshot cache when it is warm.
func (s *VisitService) ListActiveVisits(ctx context.Context) ([]*models.Visit, error) {
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, activeVisitsCacheKey); err == nil && found {
			var visits []*models.Visit
			if err := json.Unmarshal(raw, &visits); err == nil {
				metrics.IncCacheLookup(activeVisitsCacheKey, "hit")
				return visits, nil
			}
		}
		metrics.IncCacheLookup(activeVisitsCacheKey, "miss")
	}

	visits, err := s.store.GetVisitsByStatus(ctx, models.StatusOpen, models.StatusConfirmed)
	if err != nil {
		return nil, newStoreError("list active visits", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(visits); err == nil {
			if err := s.cache.Set(ctx, activeVisitsCacheKey, raw, s.activeTTL); err != nil {
				s.logger.Warn().Err(err).Msg("active visits cache set failed")
			}
		}
	}

	return visits, nil
}

func (s *VisitService) afterTransition(ctx context.Context, id, eventType, changedBy, reason string) {
	s.invalidateActive(ctx)

	visit, err := s.store.GetVisit(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("visit_id", id).Msg("post-transition fetch failed")
		return
	}

	s.publishEvent(eventType, visit, changedBy, reason)
	s.enqueueSync(ctx, "update_status", visit)

	switch eventType {
	case events.EventVisitConfirmed:
		s.notify(ctx, fmt.Sprintf("Visit confirmed: %s for %s by %s", visit.CarName, visit.DealerName, changedBy))
	case events.EventVisitCancelled:
		s.notify(ctx, fmt.Sprintf("Visit cancelled: %s for %s by %s (%s)", visit.CarName, visit.DealerName, changedBy, reason))
	}
}

func (s *VisitService) resolveCarLocation(ctx context.Context, carName string, day time.Time) string {
	if s.fleet == nil {
		return models.UnknownLocation
	}
	location, found, err := s.fleet.GetCarLocation(ctx, carName, day)
	if err != nil {
		s.logger.Warn().Err(err).Str("car_name", carName).Msg("car location lookup failed")
		return models.UnknownLocation
	}
	if !found || location == "" {
		return models.UnknownLocation
	}
	return location
}

func (s *VisitService) publishEvent(eventType string, visit *models.Visit, changedBy, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := events.VisitEventPayload{
		VisitID:     visit.ID,
		CarName:     visit.CarName,
		DealerName:  visit.DealerName,
		VisitDate:   visit.VisitDate,
		TimeSlot:    visit.TimeSlot,
		CarLocation: visit.CarLocation,
		Status:      visit.Status,
		ChangedBy:   changedBy,
		Reason:      reason,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("visit_id", visit.ID).Msg("publish event error")
	}
}

func (s *VisitService) enqueueSync(ctx context.Context, taskType string, visit *models.Visit) {
	if s.sheetsWorker == nil {
		return
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, visit.ID, visit); err != nil {
		s.logger.Error().Err(err).Str("visit_id", visit.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func (s *VisitService) invalidateActive(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, activeVisitsCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("active visits cache invalidate failed")
	}
}

func (s *VisitService) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("ops notification failed")
	}
}
