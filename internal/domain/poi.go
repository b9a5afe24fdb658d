package domain

import "context"

// RawPOI is a point of interest as returned by the mapping service.
type RawPOI struct {
	ID   string  `json:"id"`
	Kind string  `json:"kind,omitempty"` // "node" or "way"
	Lat  float64 `json:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty"`
	Tags Tags    `json:"tags"`
}

// Tags is a free-form OSM tag map.
type Tags map[string]string

// Has reports whether key is present, regardless of its value.
func (t Tags) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// First returns the first non-empty value among the alias keys, in order.
func (t Tags) First(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := t[k]; v != "" {
			return v, true
		}
	}
	return "", false
}

// Get returns the value for key or def when the key is absent or empty.
func (t Tags) Get(key, def string) string {
	if v, ok := t.First(key); ok {
		return v
	}
	return def
}

// Alias groups for tags that have more than one accepted key.
var (
	PhoneKeys         = []string{"phone", "contact:phone"}
	OpeningDateKeys   = []string{"opening_date", "start_date"}
	EmailOrSocialKeys = []string{"email", "contact:email", "contact:facebook", "contact:instagram"}
	AddressPartKeys   = []string{"addr:housenumber", "addr:street", "addr:city", "addr:state"}
)

// POIQuery selects newly opened businesses around a point.
type POIQuery struct {
	Lat         float64
	Lon         float64
	RadiusMiles int
	Verticals   []Vertical
	Days        int
}

// POISource fetches points of interest from a mapping service.
type POISource interface {
	FetchPOIs(ctx context.Context, q POIQuery) ([]RawPOI, error)
}
