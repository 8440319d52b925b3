package app

import (
	"os"
	"strconv"
	"time"

	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/pkg/jwtx"
)

type Config struct {
	Issuer    string // Issuer claim for access tokens
	JWTSecret string // Required: HS256 signing secret, >= 32 bytes

	AccessTTL        time.Duration // Access token lifetime (default: 15m)
	RefreshTTL       time.Duration // Refresh token lifetime (default: 720h)
	EmailVerifyTTL   time.Duration // Email verification token lifetime (default: 24h)
	PasswordResetTTL time.Duration // Password reset token lifetime (default: 1h)
	OAuthStateTTL    time.Duration // OAuth state lifetime (default: 10m)
	ClockSkew        time.Duration // Leeway applied to exp/nbf checks (default: 30s)

	RequireVerifiedEmail bool // Whether login requires a confirmed address (default: true)

	DatabaseFile string // Path to SQLite database file (default: ./identity.db)
	PepperFile   string // Path to the password pepper file (default: ./pepper)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)

	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-row sweep interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("IDENTITY_ISSUER", "harborcrm-identity"),
		JWTSecret: os.Getenv("IDENTITY_JWT_SECRET"),

		AccessTTL:        getEnvDurationOrDefault("IDENTITY_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:       getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		EmailVerifyTTL:   getEnvDurationOrDefault("IDENTITY_EMAIL_VERIFY_TTL", service.DefaultEmailVerifyTTL),
		PasswordResetTTL: getEnvDurationOrDefault("IDENTITY_PASSWORD_RESET_TTL", service.DefaultPasswordResetTTL),
		OAuthStateTTL:    getEnvDurationOrDefault("IDENTITY_OAUTH_STATE_TTL", service.DefaultOAuthStateTTL),
		ClockSkew:        getEnvDurationOrDefault("IDENTITY_CLOCK_SKEW", 30*time.Second),

		RequireVerifiedEmail: getEnvBoolOrDefault("IDENTITY_REQUIRE_VERIFIED_EMAIL", true),

		DatabaseFile: getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		PepperFile:   getEnvOrDefault("IDENTITY_PEPPER_FILE", "pepper"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
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
	return defaultValue
}
