//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/lead-finder/internal/adapter/kafka"
	"github.com/couchcryptid/lead-finder/internal/adapter/nominatim"
	"github.com/couchcryptid/lead-finder/internal/adapter/overpass"
	"github.com/couchcryptid/lead-finder/internal/adapter/sqlite"
	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/income"
	"github.com/couchcryptid/lead-finder/internal/observability"
	"github.com/couchcryptid/lead-finder/internal/pipeline"
)

const testLeadsTopic = "test-scored-leads"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// fakeNominatim answers every search with one Manhattan result.
func fakeNominatim(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"lat":"40.7484","lon":"-73.9967","display_name":"10001, New York, USA"}]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeOverpass serves three plumbers, one of which has a website.
func fakeOverpass(t *testing.T) *httptest.Server {
	t.Helper()
	day := func(n int) string { return time.Now().UTC().AddDate(0, 0, -n).Format(time.DateOnly) }
	body := map[string]any{"elements": []map[string]any{
		{"type": "node", "id": 1, "lat": 40.75, "lon": -73.99, "tags": map[string]string{
			"name": "Fresh Pipes", "craft": "plumber", "phone": "(650) 253-0000",
			"opening_date": day(2), "addr:postcode": "10001",
		}},
		{"type": "way", "id": 2, "center": map[string]float64{"lat": 40.76, "lon": -73.98}, "tags": map[string]string{
			"name": "Old Pipes", "craft": "plumber", "phone": "212-555-0102",
			"start_date": day(10), "addr:postcode": "10002",
		}},
		{"type": "node", "id": 3, "lat": 40.74, "lon": -73.97, "tags": map[string]string{
			"name": "Web Pipes", "craft": "plumber", "phone": "212-555-0102",
			"opening_date": day(1), "website": "https://pipes.example",
		}},
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestSearchPublishesLeads wires the search pipeline (Nominatim → Overpass →
// Rank → SQLite → Kafka) against fake upstreams and a real broker and checks
// the published messages.
func TestSearchPublishesLeads(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testLeadsTopic)

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafka.NewWriter([]string{broker}, testLeadsTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(pipeline.Deps{
		Geocoder:  nominatim.NewClient(fakeNominatim(t).URL, "lead-finder-test", 5*time.Second, 100, discardLogger(), metrics),
		Source:    overpass.NewClient(fakeOverpass(t).URL, 5*time.Second, discardLogger(), metrics),
		Store:     store,
		Incomes:   income.NewTable(map[string]int{"10001": 96000, "10002": 43300}),
		Extractor: domain.NewExtractor(nil, "https://example.com", "US"),
		Sink:      writer,
		Logger:    discardLogger(),
		Metrics:   metrics,
	})

	res, err := p.Search(ctx, pipeline.Query{Location: "10001"})
	require.NoError(t, err)
	require.Len(t, res.Leads, 2)
	assert.Equal(t, "node/1", res.Leads[0].ID)
	assert.Equal(t, "way/2", res.Leads[1].ID)
	assert.Equal(t, 1, res.Stats.Rejected[pipeline.ReasonWebsite])

	stored, err := store.CountLeads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testLeadsTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := map[string]domain.Lead{}
	headers := map[string]map[string]string{}
	for range 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from leads topic")

		var lead domain.Lead
		require.NoError(t, json.Unmarshal(msg.Value, &lead))
		assert.Equal(t, lead.ID, string(msg.Key))
		got[lead.ID] = lead
		h := map[string]string{}
		for _, kv := range msg.Headers {
			h[kv.Key] = string(kv.Value)
		}
		headers[lead.ID] = h
	}

	fresh := got["node/1"]
	assert.Equal(t, "Fresh Pipes", fresh.Name)
	assert.Equal(t, "Plumbing", fresh.Industry)
	assert.Equal(t, domain.TierHigh, fresh.IncomeTier)
	assert.Equal(t, "+16502530000", fresh.PhoneE164)
	assert.Equal(t, "https://example.com/demo/fresh-pipes", fresh.DemoLink)
	assert.Equal(t, "High", headers["node/1"]["income_tier"])
	assert.Equal(t, strconv.Itoa(fresh.LeadScore), headers["node/1"]["lead_score"])

	assert.Equal(t, domain.TierLow, got["way/2"].IncomeTier)
	assert.Equal(t, "Plumbing", headers["way/2"]["industry"])
}

// TestSearchSurvivesBrokerOutage checks that a dead broker does not fail the
// search: leads are stored and returned, publishing is skipped.
func TestSearchSurvivesBrokerOutage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafka.NewWriter([]string{"127.0.0.1:1"}, testLeadsTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(pipeline.Deps{
		Geocoder: nominatim.NewClient(fakeNominatim(t).URL, "lead-finder-test", 5*time.Second, 100, discardLogger(), metrics),
		Source:   overpass.NewClient(fakeOverpass(t).URL, 5*time.Second, discardLogger(), metrics),
		Store:    store,
		Sink:     writer,
		Logger:   discardLogger(),
		Metrics:  metrics,
	})

	searchCtx, searchCancel := context.WithTimeout(ctx, 30*time.Second)
	defer searchCancel()
	res, err := p.Search(searchCtx, pipeline.Query{Location: "10001"})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 2)
}
