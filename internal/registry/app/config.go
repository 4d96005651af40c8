package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skillchain/registry/pkg/jwtx"
)

type Config struct {
	Issuer   string
	Audience string

	JWTSecret             string // Required: current access-token signing secret
	JWTSecretPrevious     string // Optional: previous access secret, honoured during rotation
	RefreshSecret         string // Optional: current refresh secret (defaults to JWTSecret)
	RefreshSecretPrevious string // Optional: previous refresh secret

	LegacyAdminKey string   // Optional: deprecated shared admin secret; empty disables the fallback
	AdminAddresses []string // Optional: wallet addresses whose tokens carry the admin claim

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	DatabaseFile string
	RedisAddr    string
	RedisDB      int

	CORSOrigins   []string
	SecureCookies bool

	Env                 string // Environment (dev, staging, prod) (default: dev)
	LogLevel            string // Log level (debug, info, warn, error) (default: info)
	LogFormat           string // Log format (json, text) (default: json)
	Port                int    // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Issuer:   getEnvOrDefault("REGISTRY_ISSUER", "skillchain-registry"),
		Audience: getEnvOrDefault("REGISTRY_AUDIENCE", "skillchain-api"),

		JWTSecret:             os.Getenv("REGISTRY_JWT_SECRET"),
		JWTSecretPrevious:     os.Getenv("REGISTRY_JWT_SECRET_PREVIOUS"),
		RefreshSecret:         os.Getenv("REGISTRY_REFRESH_SECRET"),
		RefreshSecretPrevious: os.Getenv("REGISTRY_REFRESH_SECRET_PREVIOUS"),

		LegacyAdminKey: os.Getenv("REGISTRY_LEGACY_ADMIN_KEY"),
		AdminAddresses: splitList(os.Getenv("REGISTRY_ADMIN_ADDRESSES")),

		AccessTTL:  getEnvDurationOrDefault("REGISTRY_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("REGISTRY_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		DatabaseFile: getEnvOrDefault("REGISTRY_DATABASE_FILE", "registry.db"),
		RedisAddr:    getEnvOrDefault("REGISTRY_REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvIntOrDefault("REGISTRY_REDIS_DB", 0),

		CORSOrigins: splitList(os.Getenv("REGISTRY_CORS_ORIGINS")),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	// Cookies over plain HTTP only make sense in local dev.
	cfg.SecureCookies = cfg.Env != "dev"

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("REGISTRY_JWT_SECRET is required")
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.JWTSecret
	}

	for i, addr := range cfg.AdminAddresses {
		cfg.AdminAddresses[i] = strings.ToLower(addr)
	}

	if cfg.Env == "prod" {
		if len(cfg.CORSOrigins) == 0 {
			return Config{}, errors.New("REGISTRY_CORS_ORIGINS is required in prod")
		}
		for _, origin := range cfg.CORSOrigins {
			if origin == "*" {
				return Config{}, fmt.Errorf("wildcard CORS origin not allowed in prod")
			}
		}
	} else if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	return cfg, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer seconds for operators who prefer plain numbers.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
