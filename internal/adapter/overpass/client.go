// Package overpass fetches OpenStreetMap points of interest from the Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/observability"
)

// DefaultBaseURL is the main public Overpass interpreter.
const DefaultBaseURL = "https://overpass-api.de/api/interpreter"

// ErrBadQuery is returned when Overpass rejects the query, usually because the
// area or date range is too large for the server.
var ErrBadQuery = errors.New("overpass rejected the query; try a wider radius or shorter date range")

// Client implements domain.POISource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an Overpass client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchPOIs runs the newly-opened query and returns every element with tags.
func (c *Client) FetchPOIs(ctx context.Context, q domain.POIQuery) ([]domain.RawPOI, error) {
	if len(q.Verticals) == 0 {
		return nil, nil
	}
	query := BuildQuery(q, domain.Now())
	c.logger.Debug("overpass query", "radius_miles", q.RadiusMiles, "days", q.Days, "verticals", len(q.Verticals))

	pois, err := c.doRequest(ctx, query)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("overpass", "error").Inc()
		return nil, err
	}
	outcome := "success"
	if len(pois) == 0 {
		outcome = "empty"
	}
	c.metrics.UpstreamRequests.WithLabelValues("overpass", outcome).Inc()
	return pois, nil
}

func (c *Client) doRequest(ctx context.Context, query string) ([]domain.RawPOI, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues("overpass").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("overpass rejected query", "body", string(body))
		return nil, ErrBadQuery
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overpass API error: status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Remark != "" && len(out.Elements) == 0 {
		// Runtime errors such as timeouts arrive as a 200 with a remark.
		return nil, fmt.Errorf("overpass runtime error: %s", out.Remark)
	}

	pois := make([]domain.RawPOI, 0, len(out.Elements))
	for _, el := range out.Elements {
		if len(el.Tags) == 0 {
			continue
		}
		pois = append(pois, el.toRawPOI())
	}
	return pois, nil
}

// Overpass API response types.

type response struct {
	Remark   string    `json:"remark"`
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *center           `json:"center"` // ways, with "out center"
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (el element) toRawPOI() domain.RawPOI {
	lat, lon := el.Lat, el.Lon
	if el.Center != nil {
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	return domain.RawPOI{
		ID:   el.Type + "/" + strconv.FormatInt(el.ID, 10),
		Kind: el.Type,
		Lat:  lat,
		Lon:  lon,
		Tags: domain.Tags(el.Tags),
	}
}
