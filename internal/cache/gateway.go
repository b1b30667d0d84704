package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hectorgon/coderwall/pkg/errors"
	"github.com/hectorgon/coderwall/pkg/logger"
	"github.com/hectorgon/coderwall/pkg/metrics"
)

const defaultComputeTimeout = 10 * time.Second

// ComputeFunc produces the value for a cache key on a miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Gateway layers get-or-compute semantics over a Store. Concurrent misses on
// the same key are coalesced into a single computation; every waiting caller
// receives the one computed value.
type Gateway struct {
	store   Store
	group   singleflight.Group
	timeout time.Duration
	log     *zap.Logger
}

// GatewayOption customises Gateway behaviour.
type GatewayOption func(*Gateway)

// WithComputeTimeout bounds how long a single computation may run.
func WithComputeTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGateway constructs a Gateway over the supplied store.
func NewGateway(store Store, opts ...GatewayOption) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("cache: gateway requires a store")
	}

	gw := &Gateway{
		store:   store,
		timeout: defaultComputeTimeout,
		log:     logger.WithModule("cache"),
	}
	for _, opt := range opts {
		opt(gw)
	}
	return gw, nil
}

// Store exposes the underlying store for callers that need raw access.
func (g *Gateway) Store() Store {
	return g.store
}

// GetOrCompute returns the cached value for key, computing and storing it on a
// miss. A forced refresh bypasses the cache read but still writes the fresh
// value. Cache read failures degrade to a recompute rather than failing the
// caller; compute failures are surfaced, with timeouts translated to
// Unavailable.
func (g *Gateway) GetOrCompute(ctx context.Context, key string, ttl time.Duration, force bool, compute ComputeFunc) ([]byte, error) {
	if !force {
		if value, ok := g.lookup(ctx, key); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return value, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("forced").Inc()
	}

	value, err, _ := g.group.Do(key, func() (interface{}, error) {
		// A caller that lost the singleflight race may arrive here after the
		// winner already populated the key.
		if !force {
			if cached, ok := g.lookup(ctx, key); ok {
				return cached, nil
			}
		}

		computeCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		fresh, err := compute(computeCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, apperrors.NewUnavailable(err)
			}
			return nil, err
		}
		metrics.CacheComputations.Inc()

		if setErr := g.store.Set(ctx, key, fresh, ttl); setErr != nil {
			g.log.Warn("cache write failed", zap.String("key", key), zap.Error(setErr))
		}

		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	return value.([]byte), nil
}

func (g *Gateway) lookup(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, ok
}
