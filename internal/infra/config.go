package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	InternalAPIToken  string
	MediaSigningKey   string
	MediaURLTTL       time.Duration
	StoragePath       string
	PublicBaseURL     string
	MuseAPIKey        string
	MuseBaseURL       string
	GeoIPDBPath       string
	DeferredPollDelay time.Duration
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	DefaultLocale     string
	AllowedOrigins    string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		InternalAPIToken:  os.Getenv("INTERNAL_API_TOKEN"),
		MediaSigningKey:   os.Getenv("MEDIA_SIGNING_SECRET"),
		MediaURLTTL:       time.Hour * time.Duration(getEnvInt("MEDIA_URL_TTL_HOURS", 24)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		MuseAPIKey:        os.Getenv("MUSE_API_KEY"),
		MuseBaseURL:       getEnv("MUSE_BASE_URL", "https://api.museapi.dev/v2"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		DeferredPollDelay: time.Second * time.Duration(getEnvInt("DEFERRED_POLL_DELAY_SECONDS", 300)),
		StaleAfter:        time.Second * time.Duration(getEnvInt("STALE_AFTER_SECONDS", 600)),
		SweepInterval:     time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 120)),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.MediaSigningKey == "" {
		cfg.MediaSigningKey = cfg.JWTSecret
	}

	return cfg, nil
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
