// Package income maps ZIP codes to median household income tiers.
package income

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

// Tier thresholds in dollars, inclusive.
const (
	HighThreshold   = 80000
	MediumThreshold = 60000
)

// ErrMalformed is returned when the reference data cannot be used.
var ErrMalformed = errors.New("malformed income data")

// Table is a read-only ZIP to median income lookup. Keys are five-digit ZIPs.
type Table struct {
	incomes map[string]int
}

// NewTable builds a table from a map, normalizing the keys.
func NewTable(incomes map[string]int) *Table {
	t := &Table{incomes: make(map[string]int, len(incomes))}
	for zip, v := range incomes {
		t.incomes[domain.NormalizeZIP(zip)] = v
	}
	return t
}

// LoadFile reads a CSV with zip and median_income columns.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open income csv: %w", err)
	}
	defer f.Close()

	t, err := Load(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Load parses income CSV data. ZIPs lose any ZIP+4 suffix and are zero-padded
// to five characters. Rows with a blank income are skipped; a non-numeric
// income fails the whole load.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"zip", "median_income"} {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("%w: missing required column: %s", ErrMalformed, k)
		}
	}

	t := &Table{incomes: make(map[string]int, len(records)-1)}
	for rowIdx := 1; rowIdx < len(records); rowIdx++ {
		rec := records[rowIdx]
		get := func(name string) string {
			i := col[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		zip := domain.NormalizeZIP(get("zip"))
		raw := get("median_income")
		if zip == "" || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: median_income %q is not a number", ErrMalformed, rowIdx+1, raw)
		}
		t.incomes[zip] = int(v)
	}
	return t, nil
}

// Len returns the number of ZIPs in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.incomes)
}

// Median returns the median income for a ZIP.
func (t *Table) Median(zip string) (int, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.incomes[domain.NormalizeZIP(zip)]
	return v, ok
}

// Tier classifies a ZIP. Unknown ZIPs and a nil table yield TierUnknown.
func (t *Table) Tier(zip string) domain.IncomeTier {
	v, ok := t.Median(zip)
	if !ok {
		return domain.TierUnknown
	}
	return TierFor(v)
}

// TierFor buckets a median income.
func TierFor(median int) domain.IncomeTier {
	switch {
	case median >= HighThreshold:
		return domain.TierHigh
	case median >= MediumThreshold:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}
