// Package cache provides the TTL query cache shared by the geocoder and the
// POI source. Values are opaque bytes; Loader adds typed JSON access with
// singleflight-collapsed fills.
package cache

import (
	"context"
	"time"
)

// DefaultTTL matches how often OpenStreetMap data is worth re-fetching.
const DefaultTTL = 24 * time.Hour

// Cache stores values by key for a fixed TTL.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Clear drops every entry owned by this cache.
	Clear(ctx context.Context) error
}
