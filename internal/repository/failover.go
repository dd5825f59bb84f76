package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Shoffly/dealer-visits/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverSnapshotCache serves from the primary cache and switches to
// the fallback when the primary errors, retrying the primary after a
// minute.
type FailoverSnapshotCache struct {
	primary   domain.SnapshotCache
	fallback  domain.SnapshotCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSnapshotCache(primary, fallback domain.SnapshotCache, logger *zerolog.Logger) *FailoverSnapshotCache {
	return &FailoverSnapshotCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSnapshotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !r.isDown.Load() {
		value, found, err := r.primary.Get(ctx, key)
		if err == nil {
			return value, found, nil
		}
		r.logger.Error().Err(err).Msg("Primary snapshot cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		value, found, err := r.primary.Get(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return value, found, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverSnapshotCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary snapshot cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Set(ctx, key, value, ttl)
}

func (r *FailoverSnapshotCache) Invalidate(ctx context.Context, keys ...string) error {
	if !r.isDown.Load() {
		err := r.primary.Invalidate(ctx, keys...)
		if err == nil {
			// Keep the fallback coherent in case we flip over later.
			_ = r.fallback.Invalidate(ctx, keys...)
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary snapshot cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Invalidate(ctx, keys...)
}
