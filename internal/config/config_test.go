package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OAUTH_CLIENT_ID", "client")
	t.Setenv("OAUTH_CLIENT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/calendar")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderMicrosoft, cfg.OAuthProvider)
	require.Equal(t, "8000", cfg.HTTPPort)
	require.Equal(t, "common", cfg.OAuthTenant)
	require.Equal(t, 5*time.Minute, cfg.TokenRefreshBuffer)
	require.Equal(t, "https://graph.microsoft.com/v1.0", cfg.GraphAPIEndpoint)
	require.Contains(t, cfg.OAuthScopes, "offline_access")
	require.Contains(t, cfg.OAuthScopes, "Calendars.ReadWrite")
	require.False(t, cfg.VerifyIDToken)
	require.Equal(t, int64(1), cfg.NodeID)
	require.Equal(t, 1.0, cfg.TelemetrySampleRatio)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SNOWFLAKE_NODE_ID", "7")
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")
	t.Setenv("TOKEN_CACHE_ENABLED", "off")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, int64(7), cfg.NodeID)
	require.Equal(t, 0.25, cfg.TelemetrySampleRatio)
	require.False(t, cfg.TokenCacheEnabled)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadGoogleProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OAUTH_PROVIDER", "Google")
	t.Setenv("TOKEN_REFRESH_BUFFER", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ProviderGoogle, cfg.OAuthProvider)
	require.Equal(t, 30*time.Second, cfg.TokenRefreshBuffer)
	require.Equal(t, "https://www.googleapis.com/oauth2/v3/certs", cfg.OIDCJWKSURL)
	require.Contains(t, cfg.OAuthScopes, "https://www.googleapis.com/auth/calendar.events")
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("OAUTH_CLIENT_ID", "")
	t.Setenv("OAUTH_CLIENT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/calendar")

	_, err := Load()
	require.ErrorContains(t, err, "OAUTH_CLIENT_ID")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OAUTH_PROVIDER", "yahoo")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownTimeZone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALENDAR_TIME_ZONE", "Mars/Olympus")

	_, err := Load()
	require.ErrorContains(t, err, "CALENDAR_TIME_ZONE")
}

func TestGetList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	require.Equal(t, []string{"https://a.example", "https://b.example"}, getList("CORS_ALLOWED_ORIGINS", nil))
	require.Equal(t, []string{"x"}, getList("MISSING_LIST_KEY", []string{"x"}))
}
