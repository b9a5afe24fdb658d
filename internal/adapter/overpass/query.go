package overpass

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

const (
	metersPerMile = 1609
	serverTimeout = 25 // seconds, the [timeout:N] setting
)

// Since returns the earliest opening date a query for the last days includes.
func Since(now time.Time, days int) string {
	return now.UTC().AddDate(0, 0, -days).Format(time.DateOnly)
}

// BuildQuery renders the Overpass QL for newly opened businesses: for every
// selected vertical, both nodes and ways, matched on either date tag being
// later than the cutoff. All predicate pairs of a vertical must match.
func BuildQuery(q domain.POIQuery, now time.Time) string {
	since := Since(now, q.Days)
	around := fmt.Sprintf("(around:%d,%s,%s)", q.RadiusMiles*metersPerMile, formatCoord(q.Lat), formatCoord(q.Lon))

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", serverTimeout)
	for _, v := range q.Verticals {
		selector := predicateSelector(v.Predicate)
		for _, kind := range []string{"node", "way"} {
			for _, dateKey := range domain.OpeningDateKeys {
				fmt.Fprintf(&b, "  %s%s%s[%s>%s];\n", kind, selector, around, quote(dateKey), quote(since))
			}
		}
	}
	b.WriteString(");\nout center;\n")
	return b.String()
}

func predicateSelector(predicate map[string]string) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(predicate)) {
		fmt.Fprintf(&b, "[%s=%s]", quote(k), quote(predicate[k]))
	}
	return b.String()
}

var qlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + qlEscaper.Replace(s) + `"`
}

func formatCoord(f float64) string {
	return fmt.Sprintf("%.6f", f)
}
