package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini text generation
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTemperature float64
	GeminiTier        string

	// congress.gov feed
	CongressAPIKey string
	CongressAPIURL string
	PollEnabled    bool
	PollCron       string
	PollPageSize   int
	PollMaxPages   int
	AutoSummarize  bool

	// Summarization pipeline
	ChunkMaxWords        int
	SummaryConcurrency   int
	WorkerConcurrency    int
	SummaryRetryAttempts int
	SummaryChunkTimeout  time.Duration
	SummarySeparator     string
	FetchTimeout         time.Duration
	MaxPDFSize           int64
	AllowedSourceHosts   []string

	// Cache backends
	CacheBackend  string // "tiered" (default), "mongo", "memory"
	RedisCacheTTL time.Duration

	// HTTP protections
	RateLimitReqs   int
	RateLimitWindow int
	MaxRequestSize  int64

	// Observability
	TracingEnabled bool
	OTLPEndpoint   string
	MetricsEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/congress_digest"),
		DBName:      getEnv("DB_NAME", "congress_digest"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080")),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTemperature: getEnvFloat64("GEMINI_TEMPERATURE", 0.2),
		GeminiTier:        getEnv("GEMINI_TIER", "free"),

		CongressAPIKey: getEnv("CONGRESS_API_KEY", ""),
		CongressAPIURL: getEnv("CONGRESS_API_URL", "https://api.congress.gov/v3"),
		PollEnabled:    getEnvBool("POLL_ENABLED", false),
		PollCron:       getEnv("POLL_CRON", "0 */6 * * *"),
		PollPageSize:   getEnvInt("POLL_PAGE_SIZE", 50),
		PollMaxPages:   getEnvInt("POLL_MAX_PAGES", 2),
		AutoSummarize:  getEnvBool("AUTO_SUMMARIZE", false),

		ChunkMaxWords:        getEnvInt("CHUNK_MAX_WORDS", 10000),
		SummaryConcurrency:   getEnvInt("SUMMARY_CONCURRENCY", 1),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 2),
		SummaryRetryAttempts: getEnvInt("SUMMARY_RETRY_ATTEMPTS", 2),
		SummaryChunkTimeout:  getEnvDuration("SUMMARY_CHUNK_TIMEOUT", 3*time.Minute),
		SummarySeparator:     unescape(getEnv("SUMMARY_SEPARATOR", `\n\n`)),
		FetchTimeout:         getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
		MaxPDFSize:           getEnvInt64("MAX_PDF_SIZE", 209715200), // 200MB, same cap as in-memory extraction
		AllowedSourceHosts:   splitList(getEnv("ALLOWED_SOURCE_HOSTS", "www.congress.gov,congress.gov,api.congress.gov,www.govinfo.gov,govinfo.gov")),

		CacheBackend:  getEnv("CACHE_BACKEND", "tiered"),
		RedisCacheTTL: getEnvDuration("REDIS_CACHE_TTL", 7*24*time.Hour),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
		MaxRequestSize:  getEnvInt64("MAX_REQUEST_SIZE", 1048576),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if c.PollEnabled && c.CongressAPIKey == "" {
		return fmt.Errorf("CONGRESS_API_KEY is required when POLL_ENABLED=true")
	}

	if c.ChunkMaxWords < 1 {
		return fmt.Errorf("CHUNK_MAX_WORDS must be a positive integer, got %d", c.ChunkMaxWords)
	}

	if c.SummaryConcurrency < 1 {
		return fmt.Errorf("SUMMARY_CONCURRENCY must be at least 1, got %d", c.SummaryConcurrency)
	}

	if c.SummaryRetryAttempts < 0 {
		return fmt.Errorf("SUMMARY_RETRY_ATTEMPTS must not be negative, got %d", c.SummaryRetryAttempts)
	}

	switch c.CacheBackend {
	case "tiered", "mongo", "memory":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND: %s", c.CacheBackend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// unescape lets separators like `\n\n` be written literally in .env files.
func unescape(value string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(value)
}
