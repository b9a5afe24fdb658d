// Package app assembles the lead finder from configuration. Both binaries
// share it so the HTTP service and the CLI run the same pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/lead-finder/internal/adapter/kafka"
	"github.com/couchcryptid/lead-finder/internal/adapter/nominatim"
	"github.com/couchcryptid/lead-finder/internal/adapter/overpass"
	"github.com/couchcryptid/lead-finder/internal/adapter/sqlite"
	"github.com/couchcryptid/lead-finder/internal/cache"
	"github.com/couchcryptid/lead-finder/internal/config"
	"github.com/couchcryptid/lead-finder/internal/domain"
	"github.com/couchcryptid/lead-finder/internal/income"
	"github.com/couchcryptid/lead-finder/internal/observability"
	"github.com/couchcryptid/lead-finder/internal/pipeline"
)

// App owns the long-lived resources behind a Pipeline.
type App struct {
	Pipeline *pipeline.Pipeline
	Store    *sqlite.Store
	Incomes  *income.Table

	closers []func() error
}

// New opens storage, loads reference data and wires the pipeline. On error,
// everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{}
	if err := a.build(ctx, cfg, logger, metrics); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	verticals, err := config.LoadVerticals(cfg.VerticalsFile)
	if err != nil {
		return err
	}

	a.Incomes, err = income.LoadFile(cfg.IncomeCSV)
	if err != nil {
		return err
	}
	logger.Info("income table loaded", "path", cfg.IncomeCSV, "zips", a.Incomes.Len())

	a.Store, err = sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Store.Close)

	geoCache, poiCache, err := a.openCaches(ctx, cfg, logger)
	if err != nil {
		return err
	}

	geocoder := nominatim.NewCachedGeocoder(
		nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout, cfg.NominatimRate, logger, metrics),
		geoCache, logger, metrics,
	)
	source := overpass.NewCachedSource(
		overpass.NewClient(cfg.OverpassURL, cfg.OverpassTimeout, logger, metrics),
		poiCache, logger, metrics,
	)

	deps := pipeline.Deps{
		Geocoder:  geocoder,
		Source:    source,
		Store:     a.Store,
		Incomes:   a.Incomes,
		Extractor: domain.NewExtractor(verticals, cfg.DemoBaseURL, cfg.PhoneRegion),
		Caches:    []pipeline.CacheClearer{geocoder, source},
		Logger:    logger,
		Metrics:   metrics,
		TopN:      cfg.TopN,
	}

	if cfg.PublishEnabled() {
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaLeadsTopic, logger)
		a.closers = append(a.closers, writer.Close)
		deps.Sink = writer
		logger.Info("lead publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaLeadsTopic)
	} else {
		logger.Info("lead publishing disabled")
	}

	a.Pipeline = pipeline.New(deps)
	return nil
}

// openCaches returns the geocode and POI caches: one shared Redis when
// REDIS_URL is set, else a separate in-process LRU for each.
func (a *App) openCaches(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, cache.Cache, error) {
	if cfg.RedisURL != "" {
		rc, err := cache.OpenRedis(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, rc.Close)
		logger.Info("redis cache enabled", "ttl", cfg.CacheTTL)
		return rc, rc, nil
	}

	clock := clockwork.NewRealClock()
	logger.Info("in-memory cache enabled", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
	return cache.NewMemory(cfg.CacheSize, cfg.CacheTTL, clock), cache.NewMemory(cfg.CacheSize, cfg.CacheTTL, clock), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}
