package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	GeoIPDBPath string

	ImageProviderURL    string
	ImageProviderAPIKey string
	ImageTimeout        time.Duration

	VideoProviderURL    string
	VideoProviderAPIKey string
	VideoWebhookSecret  string

	StoragePath    string
	StorageBaseURL string

	CostImage          int
	CostImageThenVideo int

	StaleVideoAfter time.Duration

	PublicBaseURL  string
	AllowedOrigins []string

	HTTPReadTimeout time.Duration
	HTTPIdleTimeout time.Duration
	RateLimitPerMin int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		ImageProviderURL:    getEnv("IMAGE_PROVIDER_URL", "https://api.imageprovider.example/v1/generate"),
		ImageProviderAPIKey: os.Getenv("IMAGE_PROVIDER_API_KEY"),
		ImageTimeout:        time.Second * time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 45)),

		VideoProviderURL:    getEnv("VIDEO_PROVIDER_URL", "https://api.videoprovider.example/v1/jobs"),
		VideoProviderAPIKey: os.Getenv("VIDEO_PROVIDER_API_KEY"),
		VideoWebhookSecret:  os.Getenv("VIDEO_WEBHOOK_SECRET"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		CostImage:          getEnvInt("COST_IMAGE", 5),
		CostImageThenVideo: getEnvInt("COST_IMAGE_THEN_VIDEO", 25),

		// 0 disables the reconciliation sweep for jobs stuck waiting on a webhook.
		StaleVideoAfter: time.Minute * time.Duration(getEnvInt("STALE_VIDEO_AFTER_MINUTES", 120)),

		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		AllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPIdleTimeout: time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
