package pipeline

import (
	"errors"
	"sort"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

// DefaultTopN is the number of leads returned when Options.TopN is not set.
const DefaultTopN = 50

// Rejection reasons, as counted in Stats.Rejected and the rejection metric.
const (
	ReasonWebsite         = "website"
	ReasonMissingContact  = "contact"
	ReasonMissingDate     = "date"
	ReasonUnparseableDate = "unparseable_date"
	ReasonDuplicate       = "duplicate"
)

// IncomeLookup classifies a ZIP code.
type IncomeLookup interface {
	Tier(zip string) domain.IncomeTier
}

// Options controls filtering and truncation in Rank.
type Options struct {
	// ExcludeCalled drops leads whose id appears in the call history.
	ExcludeCalled bool
	// HighIncomeOnly keeps only leads in High income ZIPs.
	HighIncomeOnly bool
	// TopN caps the result; zero or negative means DefaultTopN.
	TopN int
}

// Stats counts what happened to the input records.
type Stats struct {
	Fetched  int            `json:"fetched"`
	Rejected map[string]int `json:"rejected"`
	Leads    int            `json:"leads"` // extracted, deduplicated
	Excluded int            `json:"excluded_called"`
	Filtered int            `json:"filtered_income"`
	Returned int            `json:"returned"`
}

// Result is the output of Rank.
type Result struct {
	// Leads is the ranked, filtered, truncated list shown to the operator.
	Leads []domain.Lead
	// Extracted holds every deduplicated, scored lead before exclusion and
	// filtering, in input order. Callers persist it.
	Extracted []domain.Lead
	Stats     Stats
}

// Rank turns raw POIs into ranked leads: extract, dedupe by id keeping the
// first, classify income, score, exclude called ids, filter, stable sort by
// score descending, truncate. It performs no I/O and does not mutate its input.
func Rank(ex *domain.Extractor, pois []domain.RawPOI, incomes IncomeLookup, calledIDs map[string]struct{}, opts Options) Result {
	stats := Stats{Fetched: len(pois), Rejected: map[string]int{}}
	extracted := make([]domain.Lead, 0, len(pois))
	seen := make(map[string]struct{}, len(pois))

	for _, raw := range pois {
		lead, err := ex.Extract(raw)
		if err != nil {
			stats.Rejected[rejectionReason(err)]++
			continue
		}
		if _, dup := seen[lead.ID]; dup {
			stats.Rejected[ReasonDuplicate]++
			continue
		}
		seen[lead.ID] = struct{}{}

		if incomes != nil {
			lead.IncomeTier = incomes.Tier(lead.Postcode)
		}
		lead.LeadScore = domain.Score(lead)
		extracted = append(extracted, lead)
	}
	stats.Leads = len(extracted)

	ranked := make([]domain.Lead, 0, len(extracted))
	for _, lead := range extracted {
		if opts.ExcludeCalled {
			if _, called := calledIDs[lead.ID]; called {
				stats.Excluded++
				continue
			}
		}
		if opts.HighIncomeOnly && lead.IncomeTier != domain.TierHigh {
			stats.Filtered++
			continue
		}
		ranked = append(ranked, lead)
	}

	SortByScore(ranked)

	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	stats.Returned = len(ranked)

	return Result{Leads: ranked, Extracted: extracted, Stats: stats}
}

// SortByScore orders leads by score, highest first. Ties keep their input order.
func SortByScore(leads []domain.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].LeadScore > leads[j].LeadScore
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyWebPresent):
		return ReasonWebsite
	case errors.Is(err, domain.ErrMissingContact):
		return ReasonMissingContact
	case errors.Is(err, domain.ErrMissingDate):
		return ReasonMissingDate
	default:
		return ReasonUnparseableDate
	}
}
