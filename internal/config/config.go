// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Key placements accepted by TORNPANEL_KEY_PLACEMENT.
const (
	PlacementQuery  = "query"
	PlacementHeader = "header"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr   string
	DBPath       string
	Passphrase   string
	Comment      string
	BaseURL      string
	KeyPlacement string

	RateLimitPerMin int
	HTTPTimeout     time.Duration
	HTTPCache       bool

	RedisAddr   string
	PostgresDSN string

	PollInterval      time.Duration
	Workers           int
	SnapshotRetention time.Duration

	Debug       bool
	AllowDevKey bool
	SessionKeys bool
	LogLevel    slog.Level
}

// SessionKeyFirst reports whether a caller-supplied raw key should be tried
// before the pool. Otherwise it is tried after the pool when SessionKeys is
// set.
func (c *Config) SessionKeyFirst() bool {
	return c.Debug || c.AllowDevKey
}

// AcceptSessionKey reports whether the API honors a caller-supplied raw key
// at all.
func (c *Config) AcceptSessionKey() bool {
	return c.SessionKeys || c.SessionKeyFirst()
}

// Load reads configuration from environment variables and returns a validated Config.
// TORNPANEL_KMS_MASTER (falling back to JWT_SECRET) is not required here; the
// broker refuses to start without it.
// Optional variables with defaults: TORNPANEL_LISTEN_ADDR (127.0.0.1:8080),
// TORNPANEL_DB_PATH (tornpanel.db), TORNPANEL_COMMENT (SFT),
// TORNPANEL_KEY_PLACEMENT (query), TORNPANEL_RATE_LIMIT_PER_MIN (65),
// TORNPANEL_HTTP_TIMEOUT (10s), TORNPANEL_POLL_INTERVAL (6h),
// TORNPANEL_WORKERS (6), TORNPANEL_SNAPSHOT_RETENTION_DAYS (45),
// TORNPANEL_SESSION_KEYS (true), TORNPANEL_LOG_LEVEL (info).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:   envString("TORNPANEL_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:       envString("TORNPANEL_DB_PATH", "tornpanel.db"),
		Passphrase:   os.Getenv("TORNPANEL_KMS_MASTER"),
		Comment:      envString("TORNPANEL_COMMENT", "SFT"),
		BaseURL:      os.Getenv("TORNPANEL_BASE_URL"),
		KeyPlacement: strings.ToLower(envString("TORNPANEL_KEY_PLACEMENT", PlacementQuery)),
		RedisAddr:    os.Getenv("TORNPANEL_REDIS_ADDR"),
		PostgresDSN:  os.Getenv("TORNPANEL_POSTGRES_DSN"),
	}
	if cfg.Passphrase == "" {
		cfg.Passphrase = os.Getenv("JWT_SECRET")
	}

	var errs []error
	cfg.RateLimitPerMin = envInt("TORNPANEL_RATE_LIMIT_PER_MIN", 65, &errs)
	cfg.Workers = envInt("TORNPANEL_WORKERS", 6, &errs)
	retentionDays := envInt("TORNPANEL_SNAPSHOT_RETENTION_DAYS", 45, &errs)
	cfg.SnapshotRetention = time.Duration(retentionDays) * 24 * time.Hour
	cfg.HTTPTimeout = envDuration("TORNPANEL_HTTP_TIMEOUT", 10*time.Second, &errs)
	cfg.PollInterval = envDuration("TORNPANEL_POLL_INTERVAL", 6*time.Hour, &errs)
	cfg.HTTPCache = envBool("TORNPANEL_HTTP_CACHE", false, &errs)
	cfg.Debug = envBool("TORNPANEL_DEBUG", false, &errs)
	cfg.AllowDevKey = envBool("TORNPANEL_ALLOW_DEV_KEY", false, &errs)
	cfg.SessionKeys = envBool("TORNPANEL_SESSION_KEYS", true, &errs)

	if v, ok := os.LookupEnv("TORNPANEL_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("TORNPANEL_LOG_LEVEL has invalid level %q: %w", v, err))
		}
	}

	switch cfg.KeyPlacement {
	case PlacementQuery:
	case PlacementHeader:
		// The shared cache keys on URL only, so a header-carried key
		// would let one credential's response serve another.
		if cfg.HTTPCache {
			errs = append(errs, errors.New("TORNPANEL_HTTP_CACHE cannot be combined with TORNPANEL_KEY_PLACEMENT=header"))
		}
	default:
		errs = append(errs, fmt.Errorf("TORNPANEL_KEY_PLACEMENT must be query or header, got %q", cfg.KeyPlacement))
	}

	if cfg.RateLimitPerMin <= 0 {
		errs = append(errs, fmt.Errorf("TORNPANEL_RATE_LIMIT_PER_MIN must be positive, got %d", cfg.RateLimitPerMin))
	}
	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("TORNPANEL_WORKERS must be positive, got %d", cfg.Workers))
	}
	if retentionDays <= 0 {
		errs = append(errs, fmt.Errorf("TORNPANEL_SNAPSHOT_RETENTION_DAYS must be positive, got %d", retentionDays))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("TORNPANEL_POLL_INTERVAL must be positive, got %s", cfg.PollInterval))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s has invalid integer %q: %w", key, v, err))
		return def
	}
	return n
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s has invalid duration %q: %w", key, v, err))
		return def
	}
	return d
}

func envBool(key string, def bool, errs *[]error) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err))
		return def
	}
	return b
}
