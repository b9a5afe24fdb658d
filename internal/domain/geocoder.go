package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyLocation is returned when a search has no ZIP or place name.
	ErrEmptyLocation = errors.New("location is required")
	// ErrLocationNotFound is returned when the geocoder has no match.
	ErrLocationNotFound = errors.New("location not found")
)

var zipRe = regexp.MustCompile(`^\d{5}$`)

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
}

// Geocoder resolves a ZIP code or place name to coordinates.
type Geocoder interface {
	// Geocode returns the best match for query. A zero result with a nil error
	// means the provider found nothing.
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}

// Found reports whether the result carries coordinates.
func (r GeocodingResult) Found() bool {
	return r.Lat != 0 || r.Lon != 0
}

// IsZIP reports whether s is a five-digit US ZIP code.
func IsZIP(s string) bool {
	return zipRe.MatchString(s)
}

// GeocodeQuery turns user input into a geocoder query. Five-digit ZIPs are
// pinned to the US; anything else is passed through as a place name.
func GeocodeQuery(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", ErrEmptyLocation
	}
	if IsZIP(location) {
		return location + ", USA", nil
	}
	return location, nil
}
