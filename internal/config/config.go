// Package config provides configuration loading and validation for the
// digest services. It uses koanf to merge environment variables with optional
// file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server and ingest worker.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (score cache, shared rate limit counters). Optional.
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Upstream feed aggregation API
	FeedAPIBaseURL string `koanf:"feed_api_base_url"`
	FeedAPIKey     string `koanf:"feed_api_key"`

	// LLM judge. Optional; ranking degrades to lexical scoring without it.
	LLMEndpoint string `koanf:"llm_endpoint"`
	LLMModel    string `koanf:"llm_model"`
	LLMAPIKey   string `koanf:"llm_api_key"`

	// Ranking calibration overrides (JSON file). Optional.
	CalibrationPath string `koanf:"calibration_path"`

	// Ingest worker
	IngestInterval time.Duration `koanf:"ingest_interval"`
	IngestLookback time.Duration `koanf:"ingest_lookback"`

	// Tracing
	TracingEnabled  bool    `koanf:"tracing_enabled"`
	TracingEndpoint string  `koanf:"tracing_endpoint"`
	TracingExporter string  `koanf:"tracing_exporter"`
	TracingSampling float64 `koanf:"tracing_sampling"`
	TracingInsecure bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrMissingFeedAPIBaseURL = errors.New("FEED_API_BASE_URL is required")
	ErrInvalidPort           = errors.New("PORT must be a valid integer")
	ErrInvalidDuration       = errors.New("duration values must be valid Go durations")
	ErrInvalidSamplingRate   = errors.New("TRACING_SAMPLING must be between 0.0 and 1.0")
)

// Default values for non-secret configuration.
const (
	DefaultPort            = 8080
	DefaultEnv             = "development"
	DefaultLLMModel        = "gpt-4o-mini"
	DefaultIngestInterval  = 30 * time.Minute
	DefaultIngestLookback  = 24 * time.Hour
	DefaultTracingSampling = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try BRIEFCAST_PORT first, then PORT for container platforms that inject it
	port, portErr := getEnvIntOrDefaultMulti([]string{"BRIEFCAST_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	ingestInterval, err := getEnvDurationOrDefault("INGEST_INTERVAL", k.Duration("ingest_interval"), DefaultIngestInterval)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	ingestLookback, err := getEnvDurationOrDefault("INGEST_LOOKBACK", k.Duration("ingest_lookback"), DefaultIngestLookback)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	tracingSampling, err := getEnvFloatOrDefault("TRACING_SAMPLING", k.Float64("tracing_sampling"), DefaultTracingSampling)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:              port,
		Env:               getEnvOrDefaultMulti([]string{"BRIEFCAST_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:          getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:         getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		FeedAPIBaseURL:    getEnvOrKoanf("FEED_API_BASE_URL", k, "feed_api_base_url"),
		FeedAPIKey:        getEnvOrKoanf("FEED_API_KEY", k, "feed_api_key"),
		LLMEndpoint:       getEnvOrKoanf("LLM_ENDPOINT", k, "llm_endpoint"),
		LLMModel:          getEnvOrDefault("LLM_MODEL", k.String("llm_model"), DefaultLLMModel),
		LLMAPIKey:         getEnvOrKoanf("LLM_API_KEY", k, "llm_api_key"),
		CalibrationPath:   getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		IngestInterval:    ingestInterval,
		IngestLookback:    ingestLookback,
		TracingEnabled:    getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingEndpoint:   getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingExporter:   getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), "otlp-http"),
		TracingSampling:   tracingSampling,
		TracingInsecure:   getEnvBoolOrDefault("TRACING_INSECURE", k, "tracing_insecure", false),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable parsed as a Go
// duration if set, otherwise the koanf value, or default.
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration (e.g. 30m): %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set,
// otherwise the koanf value if the key exists, or default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey)
	}
	return defaultVal
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.FeedAPIBaseURL == "" {
		errs = append(errs, ErrMissingFeedAPIBaseURL)
	}
	if c.TracingSampling < 0 || c.TracingSampling > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":              fmt.Sprintf("%d", c.Port),
		"env":               c.Env,
		"database_url":      maskDatabaseURL(c.DatabaseURL),
		"redis_url":         maskDatabaseURL(c.RedisURL),
		"jwt_secret":        maskSecret(c.JWTSecret),
		"feed_api_base_url": c.FeedAPIBaseURL,
		"feed_api_key":      maskSecret(c.FeedAPIKey),
		"llm_endpoint":      c.LLMEndpoint,
		"llm_model":         c.LLMModel,
		"llm_api_key":       maskSecret(c.LLMAPIKey),
		"calibration_path":  c.CalibrationPath,
		"ingest_interval":   c.IngestInterval.String(),
		"ingest_lookback":   c.IngestLookback.String(),
		"tracing_enabled":   fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_endpoint":  c.TracingEndpoint,
		"tracing_exporter":  c.TracingExporter,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
