package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FailurePolicyDegrade   = "degrade"
	FailurePolicyPropagate = "propagate"
)

// Config is built once at startup and handed to every component.
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string
	JWTSecret   string
	JWTTTL      time.Duration

	PlaidClientID   string
	PlaidSecret     string
	PlaidEnv        string
	PlaidClientName string

	PaymentsBaseURL string
	PaymentsKey     string
	PaymentsSecret  string

	CategoryMappingsFile string

	// FetchFailurePolicy decides whether a failed upstream read for one bank
	// item degrades to an empty list or fails the whole request.
	FetchFailurePolicy string
	MaxConcurrency     int
	PageSize           int

	HTTPTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	CacheTTL       time.Duration

	OTLPEndpoint string

	ReadOnly       bool
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTTTL:      getEnvDuration("JWT_TTL", 168*time.Hour),

		PlaidClientID:   getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:     getEnv("PLAID_SECRET", ""),
		PlaidEnv:        getEnv("PLAID_ENV", "sandbox"),
		PlaidClientName: getEnv("PLAID_CLIENT_NAME", "Horizon"),

		PaymentsBaseURL: getEnv("PAYMENTS_BASE_URL", "https://api-sandbox.dwolla.com"),
		PaymentsKey:     getEnv("PAYMENTS_KEY", ""),
		PaymentsSecret:  getEnv("PAYMENTS_SECRET", ""),

		CategoryMappingsFile: getEnv("CATEGORY_MAPPINGS_FILE", ""),

		FetchFailurePolicy: getEnv("FETCH_FAILURE_POLICY", FailurePolicyDegrade),
		MaxConcurrency:     getEnvInt("MAX_CONCURRENCY", 4),
		PageSize:           getEnvInt("PAGE_SIZE", 10),

		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:     getEnvInt("MAX_RETRIES", 0),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		CacheTTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		ReadOnly:       getEnv("READ_ONLY", "false") == "true",
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.PlaidEnv {
	case "sandbox", "production":
	default:
		errs = append(errs, fmt.Errorf("invalid PLAID_ENV %q: want sandbox or production", c.PlaidEnv))
	}
	switch c.FetchFailurePolicy {
	case FailurePolicyDegrade, FailurePolicyPropagate:
	default:
		errs = append(errs, fmt.Errorf("invalid FETCH_FAILURE_POLICY %q: want %s or %s",
			c.FetchFailurePolicy, FailurePolicyDegrade, FailurePolicyPropagate))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries))
	}
	return errors.Join(errs...)
}

func (c *Config) DegradeOnFetchFailure() bool {
	return c.FetchFailurePolicy == FailurePolicyDegrade
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
