package goToken

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestConfigFromLookupDefaults(t *testing.T) {
	cfg, err := configFromLookup(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigFromLookupOverrides(t *testing.T) {
	cfg, err := configFromLookup(lookupFrom(map[string]string{
		"JWT_PRIVATE_KEY":        "/keys/private.pem",
		"JWT_PUBLIC_KEY":         "/keys/public.pem",
		"APP_URL":                "https://api.example.test",
		"JWT_ACCESS_TTL":         "15",
		"JWT_ACCESS_CBU":         "90s",
		"JWT_REFRESH_TTL":        "1440",
		"JWT_LEEWAY":             "30",
		"JWT_TIMEZONE":           "Europe/Paris",
		"JWT_INPUT_KEY":          "access_token",
		"DATABASE_URL":           "postgres://app@localhost:5432/app",
		"REDIS_ADDR":             "localhost:6379",
		"REDIS_DB":               "2",
		"TOKEN_CLEANUP_SCHEDULE": "*/15 * * * *",
		"LOG_LEVEL":              "DEBUG",
		"LOG_FORMAT":             "json",
		"AUDIT_ENABLED":          "true",
		"METRICS_ENABLED":        "1",
		"DATABASE_AUTO_MIGRATE":  "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/keys/private.pem", cfg.JWT.PrivateKeyPath)
	assert.Equal(t, "/keys/public.pem", cfg.JWT.PublicKeyPath)
	assert.Equal(t, "https://api.example.test", cfg.JWT.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 90*time.Second, cfg.Tokens.AccessCanBeUsedAfter)
	assert.Equal(t, 24*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, 30*time.Second, cfg.JWT.Leeway)
	assert.Equal(t, "Europe/Paris", cfg.JWT.Timezone)
	assert.Equal(t, "access_token", cfg.Extraction.InputKey)
	assert.Equal(t, "postgres://app@localhost:5432/app", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "*/15 * * * *", cfg.Cleanup.Schedule)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Audit.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestConfigFromLookupRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad url":       {"APP_URL": "not a url"},
		"bad timezone":  {"JWT_TIMEZONE": "Mars/Olympus"},
		"bad redis":     {"REDIS_ADDR": "localhost"},
		"bad redis db":  {"REDIS_DB": "two"},
		"bad level":     {"LOG_LEVEL": "loud"},
		"bad format":    {"LOG_FORMAT": "xml"},
		"bad flag":      {"AUDIT_ENABLED": "maybe"},
		"bad ttl":       {"JWT_ACCESS_TTL": "soon"},
		"leeway bound":  {"JWT_LEEWAY": "600"},
		"spaced key":    {"JWT_INPUT_KEY": "my token"},
		"zero duration": {"JWT_REFRESH_TTL": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := configFromLookup(lookupFrom(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromEnvReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GOTOKEN_UNUSED=1\nJWT_ACCESS_TTL=45\n"), 0o600))
	t.Setenv("JWT_ACCESS_TTL", "")
	require.NoError(t, os.Unsetenv("JWT_ACCESS_TTL"))
	t.Cleanup(func() { _ = os.Unsetenv("GOTOKEN_UNUSED") })

	cfg, err := LoadConfigFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Tokens.AccessTTL)
}

func TestLoadConfigFromEnvMissingFile(t *testing.T) {
	_, err := LoadConfigFromEnv(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestParseEnvDuration(t *testing.T) {
	d, err := parseEnvDuration("5", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = parseEnvDuration("1h30m", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseEnvDuration("later", time.Second)
	assert.EqualError(t, err, `invalid duration "later"`)
}
