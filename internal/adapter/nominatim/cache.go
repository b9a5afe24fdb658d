package nominatim

import (
	"context"
	"log/slog"
	"strings"

	"github.com/couchcryptid/lead-finder/internal/cache"
	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/observability"
)

// CachedGeocoder wraps a Geocoder with the query cache.
type CachedGeocoder struct {
	inner  domain.Geocoder
	loader *cache.Loader[domain.GeocodingResult]
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, c cache.Cache, logger *slog.Logger, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:  inner,
		loader: cache.NewLoader[domain.GeocodingResult](c, "geocode", logger, metrics),
	}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := "geo:" + strings.ToLower(strings.TrimSpace(query))
	// Only cache matches so a transient "not found" can be retried.
	return c.loader.Load(ctx, key, func(ctx context.Context) (domain.GeocodingResult, error) {
		return c.inner.Geocode(ctx, query)
	}, domain.GeocodingResult.Found)
}

// Clear drops every cached geocode.
func (c *CachedGeocoder) Clear(ctx context.Context) error {
	return c.loader.Clear(ctx)
}
