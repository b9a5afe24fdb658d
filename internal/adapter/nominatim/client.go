package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/observability"
)

const (
	// DefaultBaseURL is the public Nominatim search endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org/search"

	defaultAttempts  = 3
	defaultRetryWait = time.Second
)

// errRetryable marks failures worth another attempt: timeouts and the
// service being unavailable or throttling us.
var errRetryable = errors.New("geocoder unavailable")

// Client implements domain.Geocoder using the Nominatim search API. Requests
// are throttled to the public usage policy of one per second by default.
type Client struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	retryWait   time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewClient creates a Nominatim client. perSecond <= 0 disables throttling.
func NewClient(baseURL, userAgent string, timeout time.Duration, perSecond float64, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		baseURL:     baseURL,
		userAgent:   userAgent,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: defaultAttempts,
		retryWait:   defaultRetryWait,
		logger:      logger,
		metrics:     metrics,
	}
}

// Geocode resolves query to coordinates, retrying timeouts and unavailability
// up to three times with a one second pause. No match is a zero result.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.UpstreamRequests.WithLabelValues("nominatim", "retry").Inc()
			c.logger.Warn("geocode attempt failed, retrying",
				"attempt", attempt-1, "query", query, "error", lastErr)
			if !sleepWithContext(ctx, c.retryWait) {
				return domain.GeocodingResult{}, ctx.Err()
			}
		}

		result, err := c.doRequest(ctx, fullURL)
		if err == nil {
			outcome := "success"
			if !result.Found() {
				outcome = "empty"
			}
			c.metrics.UpstreamRequests.WithLabelValues("nominatim", outcome).Inc()
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, errRetryable) || ctx.Err() != nil {
			break
		}
	}

	c.metrics.UpstreamRequests.WithLabelValues("nominatim", "error").Inc()
	return domain.GeocodingResult{}, fmt.Errorf("geocode %q: %w", query, lastErr)
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("wait for rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues("nominatim").Observe(time.Since(start).Seconds())
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return domain.GeocodingResult{}, fmt.Errorf("%w: %w", errRetryable, err)
		}
		return domain.GeocodingResult{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.GeocodingResult{}, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		return domain.GeocodingResult{}, nil
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	return domain.GeocodingResult{Lat: lat, Lon: lon, DisplayName: p.DisplayName}, nil
}

// Nominatim encodes coordinates as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
