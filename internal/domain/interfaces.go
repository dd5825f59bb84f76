package domain

import (
	"context"
	"time"

	"github.com/Shoffly/dealer-visits/internal/models"
)

// VisitStore is the persistence surface for visit rows. Conditional
// transition methods return the number of rows they changed so callers
// can distinguish a won transition from a lost race without a read.
type VisitStore interface {
	InsertVisit(ctx context.Context, visit *models.Visit) error
	GetVisit(ctx context.Context, id string) (*models.Visit, error)
	ConfirmVisit(ctx context.Context, id, confirmedBy, note string, at time.Time) (int64, error)
	CancelVisit(ctx context.Context, id, cancelledBy, reason string, at time.Time) (int64, error)
	GetVisitsByStatus(ctx context.Context, statuses ...string) ([]*models.Visit, error)
}

// FleetStore reads the daily fleet snapshot and dealer directory the
// warehouse feed maintains.
type FleetStore interface {
	GetCarLocations(ctx context.Context, day time.Time) ([]models.CarStatus, error)
	GetCarLocation(ctx context.Context, carName string, day time.Time) (string, bool, error)
	GetCarNames(ctx context.Context, day time.Time) ([]string, error)
	GetDealers(ctx context.Context) ([]models.Dealer, error)
	GetMovementQueue(ctx context.Context) ([]models.MovementRequest, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker enqueues a visit for mirroring to the reporting spreadsheet.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, visitID string, visit *models.Visit) error
}

type SheetsWriter interface {
	AppendVisit(ctx context.Context, visit *models.Visit) error
	UpsertVisit(ctx context.Context, visit *models.Visit) error
	ReplaceVisitsSheet(ctx context.Context, visits []*models.Visit) error
}

// Notifier delivers operational messages. Failures must never propagate
// into the lifecycle paths that emit them.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// SnapshotCache holds short-lived serialized read models keyed by name.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type VisitService interface {
	OpenVisit(ctx context.Context, draft *models.VisitDraft) (*models.Visit, error)
	ConfirmVisit(ctx context.Context, id, confirmedBy, note string) (models.Outcome, error)
	CancelVisit(ctx context.Context, id, cancelledBy, reason string) (models.Outcome, error)
	GetVisit(ctx context.Context, id string) (*models.Visit, error)
	ListActiveVisits(ctx context.Context) ([]*models.Visit, error)
}

type FleetService interface {
	CarLocations(ctx context.Context, day time.Time) (map[string]string, error)
	CarNames(ctx context.Context) ([]string, error)
	Dealers(ctx context.Context) ([]*models.Dealer, error)
	MovementQueue(ctx context.Context) ([]*models.QueueEntry, error)
}
