package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/lead-finder/internal/observability"
)

// DefaultFillTimeout bounds a shared fill once it no longer follows the
// context of the caller that started it.
const DefaultFillTimeout = 2 * time.Minute

// Loader reads typed values through a Cache, filling misses at most once per
// key at a time. Cache failures are logged and treated as misses so a broken
// cache never fails a search.
type Loader[T any] struct {
	cache       Cache
	kind        string
	group       singleflight.Group
	fillTimeout time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewLoader creates a Loader. kind labels the cache lookup metrics.
func NewLoader[T any](c Cache, kind string, logger *slog.Logger, metrics *observability.Metrics) *Loader[T] {
	return &Loader[T]{cache: c, kind: kind, fillTimeout: DefaultFillTimeout, logger: logger, metrics: metrics}
}

// Load returns the cached value for key or calls fill. Fill results are stored
// only when keep reports true, so empty answers can be retried.
func (l *Loader[T]) Load(ctx context.Context, key string, fill func(context.Context) (T, error), keep func(T) bool) (T, error) {
	if v, ok := l.lookup(ctx, key); ok {
		l.metrics.CacheLookups.WithLabelValues(l.kind, "hit").Inc()
		return v, nil
	}
	l.metrics.CacheLookups.WithLabelValues(l.kind, "miss").Inc()

	// The fill is shared by every caller waiting on key, so it runs detached
	// from the first caller's cancellation. Each caller still honors its own ctx.
	ch := l.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.fillTimeout)
		defer cancel()

		v, err := fill(fillCtx)
		if err != nil {
			return v, err
		}
		if keep == nil || keep(v) {
			l.store(fillCtx, key, v)
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Clear drops every cached entry.
func (l *Loader[T]) Clear(ctx context.Context) error {
	return l.cache.Clear(ctx)
}

func (l *Loader[T]) lookup(ctx context.Context, key string) (T, bool) {
	var v T
	data, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache get failed", "kind", l.kind, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		l.logger.Warn("cache entry undecodable, refetching", "kind", l.kind, "error", err)
		return v, false
	}
	return v, true
}

func (l *Loader[T]) store(ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("cache encode failed", "kind", l.kind, "error", err)
		return
	}
	if err := l.cache.Set(ctx, key, data); err != nil {
		l.logger.Warn("cache set failed", "kind", l.kind, "error", err)
	}
}
