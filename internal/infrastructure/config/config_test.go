package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTOML(t *testing.T, content string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	return fromViper(v)
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when nothing is set", func(t *testing.T) {
		cfg, err := loadTOML(t, "")
		require.NoError(t, err)

		assert.Equal(t, "hera-autojournal", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "hera", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, []string{"2024-12-01"}, cfg.HTTP.APIVersions)
		assert.Equal(t, "1000", cfg.Posting.ImmediateThreshold.String())
		assert.Equal(t, "500", cfg.Posting.BatchingThreshold.String())
		assert.Equal(t, 0.5, cfg.Posting.ConfidenceFloor)
		assert.Contains(t, cfg.Posting.NeverRelevantPatterns, "RESERVATION")
		assert.Equal(t, "disabled", cfg.Escalation.Provider)
		assert.Equal(t, 3*time.Second, cfg.Escalation.Timeout)
		assert.Equal(t, "memory", cfg.Idempotency.Backend)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
		assert.Equal(t, 24*time.Hour, cfg.Sweep.MaxAge)
		assert.Equal(t, "hera-autojournal", cfg.Telemetry.ServiceName)
	})

	t.Run("loads values from environment variables with HERA prefix", func(t *testing.T) {
		t.Setenv("HERA_APP_PORT", "9000")
		t.Setenv("HERA_DATABASE_HOST", "ledger-db.local")
		t.Setenv("HERA_DATABASE_PASSWORD", "secret")
		t.Setenv("HERA_POSTING_IMMEDIATE_THRESHOLD", "2500.50")
		t.Setenv("HERA_ESCALATION_PROVIDER", "gemini")
		t.Setenv("HERA_ESCALATION_API_KEY", "key")

		cfg, err := loadTOML(t, "[app]\nport = \"8081\"\n")
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "ledger-db.local", cfg.Database.Host)
		assert.Equal(t, "secret", cfg.Database.Password)
		assert.Equal(t, "2500.5", cfg.Posting.ImmediateThreshold.String())
		assert.Equal(t, "gemini", cfg.Escalation.Provider)
	})

	t.Run("reads posting section and organization overrides", func(t *testing.T) {
		cfg, err := loadTOML(t, `
[posting]
immediate_threshold = "750"
batching_threshold = "300.25"
confidence_floor = 0.7
critical_patterns = ["CRITICAL", "PAYROLL"]

[posting.organization_thresholds.2f1c7c1e-8a4b-4c39-9f5e-1d1d7b6f0a11]
immediate = "5000"
batching = "2000"

[rulebook]
path = "rules/rulebook.yaml"
watch = true
`)
		require.NoError(t, err)

		assert.Equal(t, "750", cfg.Posting.ImmediateThreshold.String())
		assert.Equal(t, "300.25", cfg.Posting.BatchingThreshold.String())
		assert.Equal(t, 0.7, cfg.Posting.ConfidenceFloor)
		assert.Equal(t, []string{"CRITICAL", "PAYROLL"}, cfg.Posting.CriticalPatterns)
		require.Len(t, cfg.Posting.OrganizationThresholds, 1)
		override := cfg.Posting.OrganizationThresholds["2f1c7c1e-8a4b-4c39-9f5e-1d1d7b6f0a11"]
		assert.Equal(t, "5000", override.Immediate)
		assert.Equal(t, "2000", override.Batching)
		assert.Equal(t, "rules/rulebook.yaml", cfg.Rulebook.Path)
		assert.True(t, cfg.Rulebook.Watch)
	})

	t.Run("rejects non-decimal threshold", func(t *testing.T) {
		_, err := loadTOML(t, "[posting]\nimmediate_threshold = \"a lot\"\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "posting.immediate_threshold")
	})

	t.Run("rejects bad organization override", func(t *testing.T) {
		_, err := loadTOML(t, "[posting.organization_thresholds.org1]\nimmediate = \"-5\"\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "org1")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		_, err := loadTOML(t, "[database]\nmax_open_conns = 10\nmax_idle_conns = 20\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("gemini provider requires an api key", func(t *testing.T) {
		_, err := loadTOML(t, "[escalation]\nprovider = \"gemini\"\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escalation.api_key")
	})

	t.Run("rejects unknown escalation provider", func(t *testing.T) {
		_, err := loadTOML(t, "[escalation]\nprovider = \"oracle\"\n")
		require.Error(t, err)
	})

	t.Run("rejects confidence floor outside unit interval", func(t *testing.T) {
		_, err := loadTOML(t, "[posting]\nconfidence_floor = 1.5\n")
		require.Error(t, err)
	})
}

func TestProductionValidation(t *testing.T) {
	base := `
[app]
env = "production"
[jwt]
secret = "0123456789abcdef0123456789abcdef"
[database]
password = "pw"
sslmode = "require"
`
	t.Run("valid production config", func(t *testing.T) {
		_, err := loadTOML(t, base)
		assert.NoError(t, err)
	})

	t.Run("short jwt secret", func(t *testing.T) {
		_, err := loadTOML(t, strings.Replace(base, "0123456789abcdef0123456789abcdef", "short", 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "32 characters")
	})

	t.Run("sslmode disable", func(t *testing.T) {
		_, err := loadTOML(t, strings.Replace(base, `sslmode = "require"`, `sslmode = "disable"`, 1))
		require.Error(t, err)
	})

	t.Run("in-memory idempotency store", func(t *testing.T) {
		_, err := loadTOML(t, base+"[idempotency]\nenabled = true\nbackend = \"memory\"\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "hera", Password: "p@ss word", DBName: "ledger", SSLMode: "disable"}
	assert.Equal(t, "postgres://hera:p%40ss%20word@db:5432/ledger?sslmode=disable", d.DSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
