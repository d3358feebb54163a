package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	BackofficeURL      string
	CatalogURL         string
	RedisURL           string
	BranchID           string
	TaxBps             int
	ShippingCost       int64
	Currency           string
	CORSAllowedOrigins []string

	OBSEnableTracing bool
	OBSOTLPEndpoint  string
	OBSSamplingRatio float64
	OBSServiceName   string
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		BackofficeURL:      strings.TrimSpace(k.String("BACKOFFICE_URL")),
		CatalogURL:         strings.TrimSpace(k.String("CATALOG_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		BranchID:           strings.TrimSpace(k.String("BRANCH_ID")),
		TaxBps:             parseInt(k.String("TAX_BPS"), 0),
		ShippingCost:       parseInt64(k.String("SHIPPING_COST"), 0),
		Currency:           valueOrDefault(k.String("CURRENCY"), "IDR"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		OBSEnableTracing: parseBool(k.String("OBS_ENABLE_TRACING")),
		OBSOTLPEndpoint:  strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		OBSSamplingRatio: parseFloat(k.String("OBS_SAMPLING_RATIO"), 1.0),
		OBSServiceName:   valueOrDefault(k.String("OBS_SERVICE_NAME"), "pos-api"),
		LogFormat:        valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "pos"),
	}

	if cfg.BackofficeURL == "" {
		return nil, errors.New("BACKOFFICE_URL is required")
	}
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = cfg.BackofficeURL
	}
	if cfg.BranchID == "" {
		return nil, errors.New("BRANCH_ID is required")
	}
	if cfg.TaxBps < 0 || cfg.TaxBps > 10000 {
		return nil, fmt.Errorf("TAX_BPS out of range: %d", cfg.TaxBps)
	}
	if cfg.ShippingCost < 0 {
		return nil, fmt.Errorf("SHIPPING_COST must not be negative: %d", cfg.ShippingCost)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
