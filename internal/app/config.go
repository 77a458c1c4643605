package app

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/pharmalytics/pharmalytics/internal/platform/memcache"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	PGDSN string `envconfig:"PG_DSN" default:"postgres://pharmalytics@localhost:5432/pharmalytics?sslmode=disable"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionCookie string `envconfig:"SESSION_COOKIE" default:"pharmalytics_session"`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`

	AnalyticsDefaultYear int           `envconfig:"ANALYTICS_DEFAULT_YEAR" default:"2025"`
	AnalyticsCacheTTL    time.Duration `envconfig:"ANALYTICS_CACHE_TTL" default:"10m"`

	SearchCacheTTL    time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"1h"`
	SearchCacheMax    int           `envconfig:"SEARCH_CACHE_MAX" default:"1000"`
	SearchCacheEvict  int           `envconfig:"SEARCH_CACHE_EVICT" default:"200"`
	DirectoryCacheTTL time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"24h"`
	DirectoryShared   bool          `envconfig:"DIRECTORY_CACHE_SHARED" default:"false"`

	WarmupCron        string `envconfig:"WARMUP_CRON" default:"30 5 * * *"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables. A .env file in
// the working directory is applied first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret must be provided")
	}
	if cfg.AppRequestTimeout <= 20*time.Second {
		return nil, errors.New("request timeout must exceed the 20s query ceiling")
	}
	return &cfg, nil
}

const testModeEnv = "PHARMALYTICS_TEST_MODE"

// InTestMode reports whether PHARMALYTICS_TEST_MODE=1. Binaries return before
// touching postgres or redis in that mode.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// SearchCache returns the lookahead cache bounds.
func (c *Config) SearchCache() memcache.Options {
	return memcache.Options{TTL: c.SearchCacheTTL, MaxEntries: c.SearchCacheMax, EvictBatch: c.SearchCacheEvict}
}
