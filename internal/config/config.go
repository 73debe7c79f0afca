package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported OAuth providers.
const (
	ProviderMicrosoft = "microsoft"
	ProviderGoogle    = "google"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	MigrateOnStart       bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	OAuthProvider        string
	OAuthClientID        string
	OAuthClientSecret    string
	OAuthTenant          string
	OAuthRedirectURL     string
	OAuthScopes          []string
	OAuthPrompt          string
	OAuthAuthURL         string
	OAuthTokenURL        string
	VerifyIDToken        bool
	OIDCJWKSURL          string
	OIDCIssuer           string
	TokenRefreshBuffer   time.Duration
	TokenCacheEnabled    bool
	TokenCacheTTL        time.Duration
	GraphAPIEndpoint     string
	GoogleCalendarID     string
	CalendarTimeZone     string
	HTTPClientTimeout    time.Duration
	ServiceName          string
	NodeID               int64
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetrySampleRatio float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	provider := strings.ToLower(strings.TrimSpace(getEnv("OAUTH_PROVIDER", ProviderMicrosoft)))
	if provider != ProviderMicrosoft && provider != ProviderGoogle {
		return Config{}, fmt.Errorf("OAUTH_PROVIDER must be %q or %q", ProviderMicrosoft, ProviderGoogle)
	}

	clientID := strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("OAUTH_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("OAUTH_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("OAUTH_CLIENT_SECRET is required")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MigrateOnStart:       getBool("MIGRATE_ON_START", true),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		OAuthProvider:        provider,
		OAuthClientID:        clientID,
		OAuthClientSecret:    clientSecret,
		OAuthTenant:          getEnv("OAUTH_TENANT", "common"),
		OAuthRedirectURL:     getEnv("OAUTH_REDIRECT_URL", "http://localhost:8000/callback"),
		OAuthScopes:          getList("OAUTH_SCOPES", DefaultScopes(provider)),
		OAuthPrompt:          getEnv("OAUTH_PROMPT", "select_account"),
		OAuthAuthURL:         os.Getenv("OAUTH_AUTH_URL"),
		OAuthTokenURL:        os.Getenv("OAUTH_TOKEN_URL"),
		VerifyIDToken:        getBool("OIDC_VERIFY_ID_TOKEN", false),
		OIDCJWKSURL:          getEnv("OIDC_JWKS_URL", defaultJWKSURL(provider)),
		OIDCIssuer:           os.Getenv("OIDC_ISSUER"),
		TokenRefreshBuffer:   getDuration("TOKEN_REFRESH_BUFFER", 5*time.Minute),
		TokenCacheEnabled:    getBool("TOKEN_CACHE_ENABLED", true),
		TokenCacheTTL:        getDuration("TOKEN_CACHE_TTL", 5*time.Minute),
		GraphAPIEndpoint:     strings.TrimRight(getEnv("GRAPH_API_ENDPOINT", "https://graph.microsoft.com/v1.0"), "/"),
		GoogleCalendarID:     getEnv("GOOGLE_CALENDAR_ID", "primary"),
		CalendarTimeZone:     getEnv("CALENDAR_TIME_ZONE", "UTC"),
		HTTPClientTimeout:    getDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		ServiceName:          getEnv("SERVICE_NAME", "calendar-bridge"),
		NodeID:               int64(getInt("SNOWFLAKE_NODE_ID", 1)),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampleRatio: getFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-User-Email", "Email"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := time.LoadLocation(cfg.CalendarTimeZone); err != nil {
		return Config{}, fmt.Errorf("CALENDAR_TIME_ZONE: %w", err)
	}
	if cfg.TokenRefreshBuffer < 0 {
		cfg.TokenRefreshBuffer = 0
	}

	return cfg, nil
}

// DefaultScopes returns the delegated scopes requested from the provider.
// Calendar read, calendar read/write and offline access are always present;
// openid/profile/email make the provider issue an identity token.
func DefaultScopes(provider string) []string {
	if provider == ProviderGoogle {
		return []string{
			"openid",
			"email",
			"profile",
			"https://www.googleapis.com/auth/calendar.readonly",
			"https://www.googleapis.com/auth/calendar.events",
		}
	}
	return []string{
		"openid",
		"profile",
		"email",
		"offline_access",
		"Calendars.Read",
		"Calendars.ReadWrite",
	}
}

func defaultJWKSURL(provider string) string {
	if provider == ProviderGoogle {
		return "https://www.googleapis.com/oauth2/v3/certs"
	}
	return "https://login.microsoftonline.com/common/discovery/v2.0/keys"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
