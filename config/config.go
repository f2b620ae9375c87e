package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Database configuration
	DatabaseDriver   string
	DatabaseURL      string
	DatabaseMaxConns int

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Cache configuration. An empty MemcacheAddr selects the in-process cache.
	MemcacheAddr    string
	CacheMaxEntries int

	// Worker configuration
	CollectInterval time.Duration

	// Public data API configuration
	DataAPIBaseURL    string
	DataAPIServiceKey string
	DataAPINumOfRows  int
	DataAPIMaxPages   int
	DataAPIPageDelay  time.Duration
	DataAPIFormat     string
	CollectDayDelay   time.Duration
	KeywordMatchLimit int

	// Scraper configuration
	FetchBackend           string
	FetchTimeout           time.Duration
	FetchProxyURL          string
	RateLimitBlock         time.Duration
	RenderEngine           string
	RenderRemoteURL        string
	RenderMinRows          int
	RulesetSource          string
	DetailFailureThreshold float64
	AgencyDelay            time.Duration
	ScrapePageDelay        time.Duration

	// HTTP API address, empty disables the server
	APIAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		DatabaseDriver:   getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:      getEnv("DATABASE_URL", "file:bidnotice.db"),
		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 10),

		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "bidnotices"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),

		MemcacheAddr:    getEnv("MEMCACHE_ADDR", ""),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 10000),

		CollectInterval: time.Duration(getEnvInt("COLLECT_INTERVAL_SECONDS", 3600)) * time.Second,

		DataAPIBaseURL:    getEnv("DATA_API_BASE_URL", "https://apis.data.go.kr/1230000/ad/BidPublicInfoService"),
		DataAPIServiceKey: getEnv("DATA_API_SERVICE_KEY", ""),
		DataAPINumOfRows:  getEnvInt("DATA_API_NUM_OF_ROWS", 100),
		DataAPIMaxPages:   getEnvInt("DATA_API_MAX_PAGES", 10),
		DataAPIPageDelay:  time.Duration(getEnvInt("DATA_API_PAGE_DELAY_MS", 500)) * time.Millisecond,
		DataAPIFormat:     strings.ToLower(getEnv("DATA_API_FORMAT", "json")),
		CollectDayDelay:   time.Duration(getEnvInt("COLLECT_DAY_DELAY_MS", 1000)) * time.Millisecond,
		KeywordMatchLimit: getEnvInt("KEYWORD_MATCH_LIMIT", 1000),

		FetchBackend:           strings.ToLower(getEnv("FETCH_BACKEND", "http")),
		FetchTimeout:           time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchProxyURL:          getEnv("FETCH_PROXY_URL", ""),
		RateLimitBlock:         time.Duration(getEnvInt("RATE_LIMIT_BLOCK_SECONDS", 300)) * time.Second,
		RenderEngine:           strings.ToLower(getEnv("RENDER_ENGINE", "rod")),
		RenderRemoteURL:        getEnv("RENDER_REMOTE_URL", ""),
		RenderMinRows:          getEnvInt("RENDER_MIN_ROWS", 5),
		RulesetSource:          getEnv("RULESET_SOURCE", "db"),
		DetailFailureThreshold: getEnvFloat("DETAIL_FAILURE_THRESHOLD", 0.5),
		AgencyDelay:            time.Duration(getEnvInt("AGENCY_DELAY_MS", 1000)) * time.Millisecond,
		ScrapePageDelay:        time.Duration(getEnvInt("SCRAPE_PAGE_DELAY_MS", 500)) * time.Millisecond,

		APIAddr: getEnv("API_ADDR", ""),

		Environment: getEnv("BIDNOTICE_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration can be used to start the application
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseMaxConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be positive")
	}
	if c.RedisStreamCount <= 0 {
		return fmt.Errorf("REDIS_STREAM_COUNT must be positive")
	}
	if c.CollectInterval <= 0 {
		return fmt.Errorf("COLLECT_INTERVAL_SECONDS must be positive")
	}
	if c.DataAPINumOfRows <= 0 || c.DataAPIMaxPages <= 0 {
		return fmt.Errorf("DATA_API_NUM_OF_ROWS and DATA_API_MAX_PAGES must be positive")
	}
	if c.DataAPIFormat != "json" && c.DataAPIFormat != "xml" {
		return fmt.Errorf("DATA_API_FORMAT must be json or xml, got %q", c.DataAPIFormat)
	}
	if c.FetchBackend != "http" && c.FetchBackend != "colly" {
		return fmt.Errorf("FETCH_BACKEND must be http or colly, got %q", c.FetchBackend)
	}
	if c.RenderEngine != "rod" && c.RenderEngine != "none" {
		return fmt.Errorf("RENDER_ENGINE must be rod or none, got %q", c.RenderEngine)
	}
	if c.DetailFailureThreshold <= 0 || c.DetailFailureThreshold > 1 {
		return fmt.Errorf("DETAIL_FAILURE_THRESHOLD must be in (0, 1]")
	}
	if c.RulesetSource == "" {
		return fmt.Errorf("RULESET_SOURCE is required")
	}
	return nil
}

// IsProduction reports whether the application runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}
