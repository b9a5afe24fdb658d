package overpass

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/lead-finder/internal/cache"
	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/observability"
)

// CachedSource wraps a POISource with the query cache.
type CachedSource struct {
	inner  domain.POISource
	loader *cache.Loader[[]domain.RawPOI]
}

// NewCachedSource creates a cache decorator around a POI source.
func NewCachedSource(inner domain.POISource, c cache.Cache, logger *slog.Logger, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:  inner,
		loader: cache.NewLoader[[]domain.RawPOI](c, "poi", logger, metrics),
	}
}

func (c *CachedSource) FetchPOIs(ctx context.Context, q domain.POIQuery) ([]domain.RawPOI, error) {
	return c.loader.Load(ctx, cacheKey(q), func(ctx context.Context) ([]domain.RawPOI, error) {
		return c.inner.FetchPOIs(ctx, q)
	}, nil)
}

// Clear drops every cached POI result.
func (c *CachedSource) Clear(ctx context.Context) error {
	return c.loader.Clear(ctx)
}

// cacheKey covers every query parameter, including the date cutoff so a key
// never outlives the day it was computed for.
func cacheKey(q domain.POIQuery) string {
	names := make([]string, len(q.Verticals))
	for i, v := range q.Verticals {
		names[i] = v.Name
	}
	return fmt.Sprintf("poi:%.5f,%.5f|r%d|since%s|%s",
		q.Lat, q.Lon, q.RadiusMiles, Since(domain.Now(), q.Days), strings.Join(names, ","))
}
