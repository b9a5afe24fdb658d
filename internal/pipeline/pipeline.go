package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/observability"
)

// Search parameter bounds.
const (
	DefaultRadiusMiles = 10
	DefaultDays        = 14
	MaxDays            = 30
	defaultVerticals   = 3
)

// RadiusChoices are the supported search radii in miles.
var RadiusChoices = []int{10, 15, 25}

// ErrInvalidQuery wraps every search or call-logging input error.
var ErrInvalidQuery = errors.New("invalid query")

// LeadStore persists leads and the call history.
type LeadStore interface {
	InsertIfAbsent(ctx context.Context, leads []domain.Lead) (int, error)
	CalledIDs(ctx context.Context) (map[string]struct{}, error)
	RecordOutcome(ctx context.Context, leadID string, outcome domain.Outcome) (domain.CallRecord, error)
	History(ctx context.Context, leadID string) ([]domain.CallRecord, error)
}

// LeadSink receives the ranked leads of every successful search.
type LeadSink interface {
	LoadBatch(ctx context.Context, leads []domain.Lead) error
}

// CacheClearer is a cache that can be emptied on demand.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// ReadinessChecker reports whether a dependency can serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Deps are the collaborators of a Pipeline. Geocoder, Source and Store are
// required; the rest are optional. Logger defaults to slog.Default and Metrics
// to an unregistered set.
type Deps struct {
	Geocoder  domain.Geocoder
	Source    domain.POISource
	Store     LeadStore
	Incomes   IncomeLookup
	Extractor *domain.Extractor
	Sink      LeadSink
	Caches    []CacheClearer
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	TopN      int
}

// Pipeline runs lead searches end to end and owns call logging. It is safe
// for concurrent use.
type Pipeline struct {
	geocoder  domain.Geocoder
	source    domain.POISource
	store     LeadStore
	incomes   IncomeLookup
	extractor *domain.Extractor
	sink      LeadSink
	caches    []CacheClearer
	logger    *slog.Logger
	metrics   *observability.Metrics
	topN      int
}

// New creates a Pipeline.
func New(d Deps) *Pipeline {
	if d.Extractor == nil {
		d.Extractor = domain.NewExtractor(nil, "", "")
	}
	if d.TopN <= 0 {
		d.TopN = DefaultTopN
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewLocalMetrics()
	}
	return &Pipeline{
		geocoder:  d.Geocoder,
		source:    d.Source,
		store:     d.Store,
		incomes:   d.Incomes,
		extractor: d.Extractor,
		sink:      d.Sink,
		caches:    d.Caches,
		logger:    d.Logger,
		metrics:   d.Metrics,
		topN:      d.TopN,
	}
}

// Query is a lead search request.
type Query struct {
	Location       string   `json:"location" validate:"required,max=200"`
	RadiusMiles    int      `json:"radius_miles" validate:"omitempty,oneof=10 15 25"`
	Verticals      []string `json:"verticals" validate:"omitempty,dive,required"`
	Days           int      `json:"days" validate:"omitempty,min=1,max=30"`
	ExcludeCalled  bool     `json:"exclude_called"`
	HighIncomeOnly bool     `json:"high_income_only"`
	TopN           int      `json:"top_n" validate:"omitempty,min=1,max=500"`
}

// SearchResult is what a successful search returns.
type SearchResult struct {
	Location    domain.GeocodingResult `json:"location"`
	RadiusMiles int                    `json:"radius_miles"`
	Days        int                    `json:"days"`
	Verticals   []string               `json:"verticals"`
	Leads       []domain.Lead          `json:"leads"`
	Stats       Stats                  `json:"stats"`
	NewlyStored int                    `json:"newly_stored"`
}

// Verticals returns the configured vertical table.
func (p *Pipeline) Verticals() []domain.Vertical {
	return p.extractor.Verticals()
}

// Search geocodes the location, fetches newly opened POIs, ranks them, stores
// every extracted lead and publishes the ranked list. Any upstream failure
// aborts the search with no partial result.
func (p *Pipeline) Search(ctx context.Context, q Query) (SearchResult, error) {
	start := time.Now()
	res, err := p.search(ctx, q)
	if err != nil {
		p.metrics.Searches.WithLabelValues("error").Inc()
		p.logger.Warn("search failed", "location", q.Location, "error", err)
		return SearchResult{}, err
	}
	p.metrics.Searches.WithLabelValues("success").Inc()
	p.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	p.metrics.LeadsReturned.Observe(float64(len(res.Leads)))
	p.logger.Info("search completed",
		"location", q.Location,
		"radius_miles", res.RadiusMiles,
		"days", res.Days,
		"fetched", res.Stats.Fetched,
		"leads", res.Stats.Leads,
		"returned", res.Stats.Returned,
		"newly_stored", res.NewlyStored,
		"duration", time.Since(start),
	)
	return res, nil
}

func (p *Pipeline) search(ctx context.Context, q Query) (SearchResult, error) {
	poiQuery, err := p.normalize(&q)
	if err != nil {
		return SearchResult{}, err
	}

	geoQuery, err := domain.GeocodeQuery(q.Location)
	if err != nil {
		return SearchResult{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	loc, err := p.geocoder.Geocode(ctx, geoQuery)
	if err != nil {
		return SearchResult{}, fmt.Errorf("geocode location: %w", err)
	}
	if !loc.Found() {
		return SearchResult{}, fmt.Errorf("%w: %q", domain.ErrLocationNotFound, q.Location)
	}
	poiQuery.Lat, poiQuery.Lon = loc.Lat, loc.Lon

	pois, err := p.source.FetchPOIs(ctx, poiQuery)
	if err != nil {
		return SearchResult{}, fmt.Errorf("fetch points of interest: %w", err)
	}
	p.metrics.POIsFetched.Add(float64(len(pois)))

	var called map[string]struct{}
	if q.ExcludeCalled {
		if called, err = p.store.CalledIDs(ctx); err != nil {
			return SearchResult{}, fmt.Errorf("load call history: %w", err)
		}
	}

	ranked := Rank(p.extractor, pois, p.incomes, called, Options{
		ExcludeCalled:  q.ExcludeCalled,
		HighIncomeOnly: q.HighIncomeOnly,
		TopN:           q.TopN,
	})
	for reason, n := range ranked.Stats.Rejected {
		p.metrics.Rejections.WithLabelValues(reason).Add(float64(n))
	}

	stored, err := p.store.InsertIfAbsent(ctx, ranked.Extracted)
	if err != nil {
		return SearchResult{}, fmt.Errorf("store leads: %w", err)
	}
	p.metrics.LeadsStored.Add(float64(stored))

	p.publish(ctx, ranked.Leads)

	names := make([]string, len(poiQuery.Verticals))
	for i, v := range poiQuery.Verticals {
		names[i] = v.Name
	}
	return SearchResult{
		Location:    loc,
		RadiusMiles: poiQuery.RadiusMiles,
		Days:        poiQuery.Days,
		Verticals:   names,
		Leads:       ranked.Leads,
		Stats:       ranked.Stats,
		NewlyStored: stored,
	}, nil
}

// normalize applies defaults and validates the parameters.
func (p *Pipeline) normalize(q *Query) (domain.POIQuery, error) {
	if strings.TrimSpace(q.Location) == "" {
		return domain.POIQuery{}, fmt.Errorf("%w: %w", ErrInvalidQuery, domain.ErrEmptyLocation)
	}
	if q.RadiusMiles == 0 {
		q.RadiusMiles = DefaultRadiusMiles
	}
	if !slices.Contains(RadiusChoices, q.RadiusMiles) {
		return domain.POIQuery{}, fmt.Errorf("%w: radius must be one of %v miles", ErrInvalidQuery, RadiusChoices)
	}
	if q.Days == 0 {
		q.Days = DefaultDays
	}
	if q.Days < 1 || q.Days > MaxDays {
		return domain.POIQuery{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidQuery, MaxDays)
	}
	if q.TopN <= 0 {
		q.TopN = p.topN
	}

	table := p.extractor.Verticals()
	var verticals []domain.Vertical
	if len(q.Verticals) == 0 {
		verticals = table[:min(defaultVerticals, len(table))]
	} else {
		var unknown []string
		verticals, unknown = domain.SelectVerticals(table, q.Verticals)
		if len(unknown) > 0 {
			return domain.POIQuery{}, fmt.Errorf("%w: unknown verticals %s", ErrInvalidQuery, strings.Join(unknown, ", "))
		}
	}

	return domain.POIQuery{
		RadiusMiles: q.RadiusMiles,
		Verticals:   verticals,
		Days:        q.Days,
	}, nil
}

// publish hands the ranked leads to the sink. Sink failures are logged and do
// not fail the search; the leads are already stored.
func (p *Pipeline) publish(ctx context.Context, leads []domain.Lead) {
	if p.sink == nil || len(leads) == 0 {
		return
	}
	if err := p.sink.LoadBatch(ctx, leads); err != nil {
		p.logger.Error("publish leads failed", "error", err, "batch_size", len(leads))
		return
	}
	p.metrics.LeadsPublished.Add(float64(len(leads)))
}

// RecordOutcome logs a call. Uncalled is accepted and recorded as nothing,
// in which case the returned record is nil.
func (p *Pipeline) RecordOutcome(ctx context.Context, leadID, outcome string) (*domain.CallRecord, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return nil, fmt.Errorf("%w: lead id is required", ErrInvalidQuery)
	}
	o, err := domain.ParseOutcome(outcome)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if !o.Recordable() {
		return nil, nil
	}

	rec, err := p.store.RecordOutcome(ctx, leadID, o)
	if err != nil {
		return nil, fmt.Errorf("record call: %w", err)
	}
	p.metrics.CallOutcomes.WithLabelValues(string(o)).Inc()
	p.logger.Info("call recorded", "lead_id", leadID, "outcome", o)
	return &rec, nil
}

// History lists the calls made to a lead, oldest first.
func (p *Pipeline) History(ctx context.Context, leadID string) ([]domain.CallRecord, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return nil, fmt.Errorf("%w: lead id is required", ErrInvalidQuery)
	}
	calls, err := p.store.History(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("load call history: %w", err)
	}
	return calls, nil
}

// Refresh empties the geocode and POI caches so the next search refetches.
func (p *Pipeline) Refresh(ctx context.Context) error {
	var errs []error
	for _, c := range p.caches {
		if err := c.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear caches: %w", err)
	}
	p.logger.Info("caches cleared", "count", len(p.caches))
	return nil
}

// CheckReadiness returns nil when the lead store is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if rc, ok := p.store.(ReadinessChecker); ok {
		if err := rc.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("lead store not ready: %w", err)
		}
	}
	return nil
}
