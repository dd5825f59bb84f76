package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shoffly/dealer-visits/internal/domain"
	"github.com/Shoffly/dealer-visits/internal/metrics"
	"github.com/Shoffly/dealer-visits/internal/models"

	"github.com/rs/zerolog"
)

const (
	carLocationsCacheKey  = "car_locations"
	carNamesCacheKey      = "car_names"
	dealersCacheKey       = "dealers"
	movementQueueCacheKey = "movement_queue"
)

// FleetService serves the fleet read models behind short-lived cache
// snapshots. All data is advisory; the visit lifecycle never depends on
// its freshness.
type FleetService struct {
	store        domain.FleetStore
	cache        domain.SnapshotCache
	fleetTTL     time.Duration
	directoryTTL time.Duration
	logger       *zerolog.Logger
}

func NewFleetService(store domain.FleetStore, cache domain.SnapshotCache, fleetTTL, directoryTTL time.Duration, logger *zerolog.Logger) *FleetService {
	if fleetTTL <= 0 {
		fleetTTL = models.FleetCacheTTL * time.Second
	}
	if directoryTTL <= 0 {
		directoryTTL = models.DirectoryCacheTTL * time.Second
	}
	return &FleetService{
		store:        store,
		cache:        cache,
		fleetTTL:     fleetTTL,
		directoryTTL: directoryTTL,
		logger:       logger,
	}
}

// CarLocations returns the wholesale car location snapshot for a day.
func (s *FleetService) CarLocations(ctx context.Context, day time.Time) (map[string]string, error) {
	key := carLocationsCacheKey + ":" + day.Format("2006-01-02")

	var cached map[string]string
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	statuses, err := s.store.GetCarLocations(ctx, day)
	if err != nil {
		return nil, newStoreError("car locations", err)
	}

	locations := make(map[string]string, len(statuses))
	for _, status := range statuses {
		locations[status.CarName] = status.Location
	}

	s.put(ctx, key, locations, s.fleetTTL)
	return locations, nil
}

// CarNames returns the cars offered by the visit form dropdown.
func (s *FleetService) CarNames(ctx context.Context) ([]string, error) {
	var cached []string
	if s.lookup(ctx, carNamesCacheKey, &cached) {
		return cached, nil
	}

	names, err := s.store.GetCarNames(ctx, time.Now())
	if err != nil {
		return nil, newStoreError("car names", err)
	}

	s.put(ctx, carNamesCacheKey, names, s.directoryTTL)
	return names, nil
}

// Dealers returns the dealer directory.
func (s *FleetService) Dealers(ctx context.Context) ([]*models.Dealer, error) {
	var cached []*models.Dealer
	if s.lookup(ctx, dealersCacheKey, &cached) {
		return cached, nil
	}

	rows, err := s.store.GetDealers(ctx)
	if err != nil {
		return nil, newStoreError("dealers", err)
	}

	dealers := make([]*models.Dealer, len(rows))
	for i := range rows {
		dealers[i] = &rows[i]
	}

	s.put(ctx, dealersCacheKey, dealers, s.directoryTTL)
	return dealers, nil
}

// MovementQueue returns in-progress movement requests with their
// progress stage and time-to-contact.
func (s *FleetService) MovementQueue(ctx context.Context) ([]*models.QueueEntry, error) {
	var cached []*models.QueueEntry
	if s.lookup(ctx, movementQueueCacheKey, &cached) {
		return cached, nil
	}

	requests, err := s.store.GetMovementQueue(ctx)
	if err != nil {
		return nil, newStoreError("movement queue", err)
	}

	entries := make([]*models.QueueEntry, 0, len(requests))
	for i := range requests {
		entries = append(entries, models.NewQueueEntry(&requests[i]))
	}

	s.put(ctx, movementQueueCacheKey, entries, s.fleetTTL)
	return entries, nil
}

// Refresh drops the fleet snapshots so the next read hits the store.
func (s *FleetService) Refresh(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, carNamesCacheKey, dealersCacheKey, movementQueueCacheKey)
}

func (s *FleetService) lookup(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		metrics.IncCacheLookup(key, "miss")
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		metrics.IncCacheLookup(key, "miss")
		return false
	}
	metrics.IncCacheLookup(key, "hit")
	return true
}

func (s *FleetService) put(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("fleet cache set failed")
	}
}
