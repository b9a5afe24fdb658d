package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/observability"
	"github.com/couchcryptid/lead-finder/internal/pipeline"
)

// --- mocks ---

type mockGeocoder struct {
	result  domain.GeocodingResult
	err     error
	queries []string
}

func (m *mockGeocoder) Geocode(_ context.Context, query string) (domain.GeocodingResult, error) {
	m.queries = append(m.queries, query)
	return m.result, m.err
}

type mockSource struct {
	pois    []domain.RawPOI
	err     error
	queries []domain.POIQuery
}

func (m *mockSource) FetchPOIs(_ context.Context, q domain.POIQuery) ([]domain.RawPOI, error) {
	m.queries = append(m.queries, q)
	return m.pois, m.err
}

type memStore struct {
	mu       sync.Mutex
	leads    map[string]domain.Lead
	calls    []domain.CallRecord
	inserts  int
	err      error
	readyErr error
}

func newMemStore() *memStore {
	return &memStore{leads: map[string]domain.Lead{}}
}

func (m *memStore) InsertIfAbsent(_ context.Context, leads []domain.Lead) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.inserts++
	n := 0
	for _, l := range leads {
		if _, ok := m.leads[l.ID]; !ok {
			m.leads[l.ID] = l
			n++
		}
	}
	return n, nil
}

func (m *memStore) CalledIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := map[string]struct{}{}
	for _, c := range m.calls {
		ids[c.LeadID] = struct{}{}
	}
	return ids, m.err
}

func (m *memStore) RecordOutcome(_ context.Context, leadID string, o domain.Outcome) (domain.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := domain.CallRecord{ID: "call-" + leadID, LeadID: leadID, Outcome: o, CalledAt: domain.Now()}
	m.calls = append(m.calls, rec)
	return rec, nil
}

func (m *memStore) History(_ context.Context, leadID string) ([]domain.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CallRecord
	for _, c := range m.calls {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CheckReadiness(_ context.Context) error { return m.readyErr }

type mockSink struct {
	batches [][]domain.Lead
	err     error
}

func (m *mockSink) LoadBatch(_ context.Context, leads []domain.Lead) error {
	m.batches = append(m.batches, leads)
	return m.err
}

type mockCache struct {
	cleared int
	err     error
}

func (m *mockCache) Clear(_ context.Context) error {
	m.cleared++
	return m.err
}

type fixture struct {
	geocoder *mockGeocoder
	source   *mockSource
	store    *memStore
	sink     *mockSink
	caches   []*mockCache
	pipeline *pipeline.Pipeline
}

func newFixture(t *testing.T, pois ...domain.RawPOI) *fixture {
	t.Helper()
	freezeClock(t)

	f := &fixture{
		geocoder: &mockGeocoder{result: domain.GeocodingResult{Lat: 40.7484, Lon: -73.9967, DisplayName: "New York"}},
		source:   &mockSource{pois: pois},
		store:    newMemStore(),
		sink:     &mockSink{},
		caches:   []*mockCache{{}, {}},
	}
	f.pipeline = pipeline.New(pipeline.Deps{
		Geocoder:  f.geocoder,
		Source:    f.source,
		Store:     f.store,
		Incomes:   incomes,
		Extractor: extractor,
		Sink:      f.sink,
		Caches:    []pipeline.CacheClearer{f.caches[0], f.caches[1]},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   observability.NewMetricsForTesting(),
	})
	return f
}

// --- tests ---

func TestSearch_HappyPath(t *testing.T) {
	f := newFixture(t, plumber("node/1", 5), plumber("node/2", 1))

	res, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
	require.NoError(t, err)

	assert.Equal(t, []string{"10001, USA"}, f.geocoder.queries)
	require.Len(t, f.source.queries, 1)
	q := f.source.queries[0]
	assert.Equal(t, 40.7484, q.Lat)
	assert.Equal(t, -73.9967, q.Lon)
	assert.Equal(t, 10, q.RadiusMiles)
	assert.Equal(t, 14, q.Days)
	require.Len(t, q.Verticals, 3)
	assert.Equal(t, "Plumbing", q.Verticals[0].Name)

	assert.Equal(t, []string{"node/2", "node/1"}, ids(res.Leads))
	assert.Equal(t, []string{"Plumbing", "Cafe", "Pet Grooming"}, res.Verticals)
	assert.Equal(t, "New York", res.Location.DisplayName)
	assert.Equal(t, 2, res.NewlyStored)
	assert.Len(t, f.store.leads, 2)

	require.Len(t, f.sink.batches, 1)
	assert.Equal(t, ids(res.Leads), ids(f.sink.batches[0]))
}

func TestSearch_PlaceNameAndOptions(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Search(context.Background(), pipeline.Query{
		Location:    "Austin, TX",
		RadiusMiles: 25,
		Days:        30,
		Verticals:   []string{"Medical Clinic", "Cafe"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Austin, TX"}, f.geocoder.queries)
	q := f.source.queries[0]
	assert.Equal(t, 25, q.RadiusMiles)
	assert.Equal(t, 30, q.Days)
	assert.Equal(t, []string{"Cafe", "Medical Clinic"}, res.Verticals, "table order wins")
	assert.Empty(t, res.Leads)
	assert.Empty(t, f.sink.batches, "empty results are not published")
}

func TestSearch_IdempotentStore(t *testing.T) {
	f := newFixture(t, plumber("node/1", 5), plumber("node/2", 1))

	first, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
	require.NoError(t, err)
	second, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
	require.NoError(t, err)

	assert.Equal(t, 2, first.NewlyStored)
	assert.Equal(t, 0, second.NewlyStored)
	assert.Len(t, f.store.leads, 2)
	assert.Equal(t, ids(first.Leads), ids(second.Leads))
}

func TestSearch_ExcludeCalled(t *testing.T) {
	f := newFixture(t, plumber("node/1", 5), plumber("node/2", 1))
	ctx := context.Background()

	_, err := f.pipeline.RecordOutcome(ctx, "node/2", "Voicemail")
	require.NoError(t, err)

	res, err := f.pipeline.Search(ctx, pipeline.Query{Location: "10001", ExcludeCalled: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"node/1"}, ids(res.Leads))
	assert.Len(t, f.store.leads, 2, "called leads are still stored")

	res, err = f.pipeline.Search(ctx, pipeline.Query{Location: "10001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"node/2", "node/1"}, ids(res.Leads))
}

func TestSearch_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query pipeline.Query
	}{
		{"empty location", pipeline.Query{Location: "  "}},
		{"radius not offered", pipeline.Query{Location: "10001", RadiusMiles: 12}},
		{"days too many", pipeline.Query{Location: "10001", Days: 31}},
		{"days negative", pipeline.Query{Location: "10001", Days: -1}},
		{"unknown vertical", pipeline.Query{Location: "10001", Verticals: []string{"Cafe", "Bakery"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline.Search(context.Background(), tt.query)
			require.ErrorIs(t, err, pipeline.ErrInvalidQuery)
			assert.Empty(t, f.geocoder.queries)
		})
	}
}

func TestSearch_LocationNotFound(t *testing.T) {
	f := newFixture(t, plumber("node/1", 5))
	f.geocoder.result = domain.GeocodingResult{}

	_, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "00000"})
	require.ErrorIs(t, err, domain.ErrLocationNotFound)
	assert.Empty(t, f.source.queries)
}

func TestSearch_UpstreamFailuresAreTerminal(t *testing.T) {
	boom := errors.New("boom")

	t.Run("geocoder", func(t *testing.T) {
		f := newFixture(t, plumber("node/1", 5))
		f.geocoder.err = boom
		_, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.source.queries)
		assert.Empty(t, f.store.leads)
	})

	t.Run("poi source", func(t *testing.T) {
		f := newFixture(t)
		f.source.err = boom
		_, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
		require.ErrorIs(t, err, boom)
		assert.Zero(t, f.store.inserts)
	})

	t.Run("store", func(t *testing.T) {
		f := newFixture(t, plumber("node/1", 5))
		f.store.err = boom
		_, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.sink.batches)
	})
}

func TestSearch_SinkFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, plumber("node/1", 5))
	f.sink.err = errors.New("broker down")

	res, err := f.pipeline.Search(context.Background(), pipeline.Query{Location: "10001"})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)
}

func TestSearch_WithoutSink(t *testing.T) {
	freezeClock(t)
	p := pipeline.New(pipeline.Deps{
		Geocoder: &mockGeocoder{result: domain.GeocodingResult{Lat: 1, Lon: 1}},
		Source:   &mockSource{pois: []domain.RawPOI{plumber("node/1", 5)}},
		Store:    newMemStore(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  observability.NewMetricsForTesting(),
	})

	res, err := p.Search(context.Background(), pipeline.Query{Location: "10001", TopN: 1})
	require.NoError(t, err)
	require.Len(t, res.Leads, 1)
	assert.Equal(t, domain.TierUnknown, res.Leads[0].IncomeTier, "no income table means Unknown")
}

func TestNew_DefaultsLoggerAndMetrics(t *testing.T) {
	freezeClock(t)
	store := newMemStore()
	p := pipeline.New(pipeline.Deps{
		Geocoder: &mockGeocoder{result: domain.GeocodingResult{Lat: 1, Lon: 1}},
		Source:   &mockSource{pois: []domain.RawPOI{plumber("node/1", 5)}},
		Store:    store,
	})

	ctx := context.Background()
	res, err := p.Search(ctx, pipeline.Query{Location: "10001"})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)

	_, err = p.Search(ctx, pipeline.Query{Location: ""})
	require.ErrorIs(t, err, pipeline.ErrInvalidQuery)

	rec, err := p.RecordOutcome(ctx, "node/1", "Connected")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NoError(t, p.Refresh(ctx))
}

func TestRecordOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.pipeline.RecordOutcome(ctx, "node/1", "No Answer")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.OutcomeNoAnswer, rec.Outcome)
	assert.Equal(t, testNow, rec.CalledAt)

	rec, err = f.pipeline.RecordOutcome(ctx, "node/1", "Uncalled")
	require.NoError(t, err)
	assert.Nil(t, rec, "Uncalled is never recorded")

	_, err = f.pipeline.RecordOutcome(ctx, "node/1", "Busy")
	require.ErrorIs(t, err, pipeline.ErrInvalidQuery)
	require.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = f.pipeline.RecordOutcome(ctx, " ", "Connected")
	require.ErrorIs(t, err, pipeline.ErrInvalidQuery)

	history, err := f.pipeline.History(ctx, "node/1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.OutcomeNoAnswer, history[0].Outcome)

	_, err = f.pipeline.History(ctx, "")
	assert.ErrorIs(t, err, pipeline.ErrInvalidQuery)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.pipeline.Refresh(context.Background()))
	assert.Equal(t, 1, f.caches[0].cleared)
	assert.Equal(t, 1, f.caches[1].cleared)

	f.caches[0].err = errors.New("redis down")
	err := f.pipeline.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 2, f.caches[1].cleared, "every cache is attempted")
}

func TestCheckReadiness(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.pipeline.CheckReadiness(context.Background()))

	f.store.readyErr = errors.New("disk gone")
	assert.ErrorContains(t, f.pipeline.CheckReadiness(context.Background()), "disk gone")
}

func TestVerticals(t *testing.T) {
	f := newFixture(t)
	assert.Len(t, f.pipeline.Verticals(), 5)
}

func TestSearch_ConcurrentUse(t *testing.T) {
	freezeClock(t)
	store := newMemStore()
	geocode := geocoderFunc(func(context.Context, string) (domain.GeocodingResult, error) {
		return domain.GeocodingResult{Lat: 1, Lon: 1}, nil
	})
	fetch := sourceFunc(func(context.Context, domain.POIQuery) ([]domain.RawPOI, error) {
		return []domain.RawPOI{plumber("node/1", 5)}, nil
	})
	p := pipeline.New(pipeline.Deps{
		Geocoder: geocode,
		Source:   fetch,
		Store:    store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  observability.NewMetricsForTesting(),
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err := p.Search(ctx, pipeline.Query{Location: "10001"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, store.leads, 1)
}

type geocoderFunc func(context.Context, string) (domain.GeocodingResult, error)

func (f geocoderFunc) Geocode(ctx context.Context, q string) (domain.GeocodingResult, error) {
	return f(ctx, q)
}

type sourceFunc func(context.Context, domain.POIQuery) ([]domain.RawPOI, error)

func (f sourceFunc) FetchPOIs(ctx context.Context, q domain.POIQuery) ([]domain.RawPOI, error) {
	return f(ctx, q)
}
