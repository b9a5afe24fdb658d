package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabasePath  string
	IncomeCSV     string
	VerticalsFile string

	// Nominatim geocoding.
	NominatimURL       string
	NominatimUserAgent string
	NominatimRate      float64 // requests per second
	GeocodeTimeout     time.Duration

	// Overpass POI queries.
	OverpassURL     string
	OverpassTimeout time.Duration

	// Query cache. RedisURL switches from the in-process LRU to Redis.
	CacheTTL  time.Duration
	CacheSize int
	RedisURL  string

	// Lead sink. Publishing is disabled when KafkaBrokers is empty.
	KafkaBrokers    []string
	KafkaLeadsTopic string

	DemoBaseURL string
	PhoneRegion string
	TopN        int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	geocodeTimeout, err := parseDuration("GEOCODE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	overpassTimeout, err := parseDuration("OVERPASS_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	topN, err := parsePositiveInt("TOP_N", 50)
	if err != nil {
		return nil, err
	}

	rate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("NOMINATIM_RATE", "1"), 64)
	if err != nil || rate <= 0 {
		return nil, errors.New("invalid NOMINATIM_RATE: must be a positive number")
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabasePath:  sharedcfg.EnvOrDefault("DATABASE_PATH", "leads.db"),
		IncomeCSV:     sharedcfg.EnvOrDefault("INCOME_CSV", "data/zip_income.csv"),
		VerticalsFile: os.Getenv("VERTICALS_FILE"),

		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org/search"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "lead-finder/1.0"),
		NominatimRate:      rate,
		GeocodeTimeout:     geocodeTimeout,

		OverpassURL:     sharedcfg.EnvOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout: overpassTimeout,

		CacheTTL:  cacheTTL,
		CacheSize: cacheSize,
		RedisURL:  os.Getenv("REDIS_URL"),

		KafkaBrokers:    brokers,
		KafkaLeadsTopic: sharedcfg.EnvOrDefault("KAFKA_LEADS_TOPIC", "scored-leads"),

		DemoBaseURL: sharedcfg.EnvOrDefault("DEMO_BASE_URL", "https://yourdomain.com"),
		PhoneRegion: sharedcfg.EnvOrDefault("PHONE_REGION", "US"),
		TopN:        topN,
	}

	if cfg.DatabasePath == "" {
		return nil, errors.New("DATABASE_PATH is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaLeadsTopic == "" {
		return nil, errors.New("KAFKA_LEADS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// PublishEnabled reports whether scored leads should be written to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
