package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, keys ...string) error {
	callArgs := make([]interface{}, 0, len(keys)+1)
	callArgs = append(callArgs, ctx)
	for _, key := range keys {
		callArgs = append(callArgs, key)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}

func TestFailoverSnapshotCache(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	cache := NewFailoverSnapshotCache(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Get", ctx, "k1").Return([]byte("v1"), true, nil).Once()

		got, found, err := cache.Get(ctx, "k1")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v1"), got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Get", ctx, "k2").Return(nil, false, errors.New("fail")).Once()
		fallback.On("Get", ctx, "k2").Return([]byte("v2"), true, nil).Once()

		got, found, err := cache.Get(ctx, "k2")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v2"), got)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("Get", ctx, "k3").Return([]byte("v3"), true, nil).Once()

		got, found, err := cache.Get(ctx, "k3")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v3"), got)
		assert.False(t, cache.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("Get", ctx, "k4").Return(nil, false, errors.New("still fail")).Once()
		fallback.On("Get", ctx, "k4").Return(nil, false, nil).Once()

		_, found, err := cache.Get(ctx, "k4")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetSuccess", func(t *testing.T) {
		cache.isDown.Store(false)
		primary.On("Set", ctx, "k5", []byte("v5"), time.Minute).Return(nil).Once()

		err := cache.Set(ctx, "k5", []byte("v5"), time.Minute)
		assert.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("SetFailover", func(t *testing.T) {
		cache.isDown.Store(false)
		primary.On("Set", ctx, "k6", []byte("v6"), time.Minute).Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "k6", []byte("v6"), time.Minute).Return(nil).Once()

		err := cache.Set(ctx, "k6", []byte("v6"), time.Minute)
		assert.NoError(t, err)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidateSuccessHitsBoth", func(t *testing.T) {
		cache.isDown.Store(false)
		primary.On("Invalidate", ctx, "k7").Return(nil).Once()
		fallback.On("Invalidate", ctx, "k7").Return(nil).Once()

		err := cache.Invalidate(ctx, "k7")
		assert.NoError(t, err)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidateFailover", func(t *testing.T) {
		cache.isDown.Store(false)
		primary.On("Invalidate", ctx, "k8").Return(errors.New("fail")).Once()
		fallback.On("Invalidate", ctx, "k8").Return(nil).Once()

		err := cache.Invalidate(ctx, "k8")
		assert.NoError(t, err)
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetAlreadyDown", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck = time.Now()
		fallback.On("Set", ctx, "k9", []byte("v9"), time.Minute).Return(nil).Once()

		err := cache.Set(ctx, "k9", []byte("v9"), time.Minute)
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
	})
}
