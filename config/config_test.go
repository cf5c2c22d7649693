package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-roll/rollreturn/internal/domain/roll"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "")
	t.Setenv("MOE_BASE_DIR", "/srv/moe")
	t.Setenv("REGISTRY_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, 5*time.Second, cfg.Audit.Timeout)
	assert.Equal(t, BackendSQLite, cfg.Registry.Backend)
	assert.Equal(t, 10, cfg.Lock.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Lock.RetryDelay)
	assert.Nil(t, cfg.Rules.ExcludeSTPFromMaori)
}

func TestLoad_AuditTimeout(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "")
	t.Setenv("MOE_BASE_DIR", "/srv/moe")
	t.Setenv("AUDIT_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Audit.Timeout)
}

func TestLoad_TestEnvReadsDotEnvTest(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"),
		[]byte("MOE_BASE_DIR=/tmp/moe-test\nREGISTRY_BACKEND=redis\nLOCK_TTL=5s\n"), 0o600))

	t.Setenv("APP_ENV", "test")
	t.Setenv("MOE_BASE_DIR", "")
	t.Setenv("REGISTRY_BACKEND", "")
	t.Setenv("LOCK_TTL", "")
	t.Cleanup(func() {
		os.Unsetenv("MOE_BASE_DIR")
		os.Unsetenv("REGISTRY_BACKEND")
		os.Unsetenv("LOCK_TTL")
	})
	os.Unsetenv("MOE_BASE_DIR")
	os.Unsetenv("REGISTRY_BACKEND")
	os.Unsetenv("LOCK_TTL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvTest, cfg.App.Environment)
	assert.Equal(t, "/tmp/moe-test", cfg.Output.BaseDir)
	assert.Equal(t, BackendRedis, cfg.Registry.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lock.TTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Output:   OutputConfig{BaseDir: "/srv/moe"},
			Registry: RegistryConfig{Backend: BackendSQLite},
			SQLite:   SQLiteConfig{Path: "r.db"},
			Lock:     LockConfig{MaxAttempts: 3, TTL: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no base dir", func(c *Config) { c.Output.BaseDir = "" }, "MOE_BASE_DIR"},
		{"unknown backend", func(c *Config) { c.Registry.Backend = "etcd" }, "REGISTRY_BACKEND"},
		{"postgres without url", func(c *Config) { c.Registry.Backend = BackendPostgres }, "DATABASE_URL"},
		{"zero attempts", func(c *Config) { c.Lock.MaxAttempts = 0 }, "LOCK_MAX_ATTEMPTS"},
		{"redis without ttl", func(c *Config) {
			c.Registry.Backend = BackendRedis
			c.Redis.Addr = "localhost:6379"
			c.Lock.TTL = 0
		}, "LOCK_TTL"},
		{"negative audit timeout", func(c *Config) { c.Audit.Timeout = -time.Second }, "AUDIT_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseRules(t *testing.T) {
	data := []byte(`
category_types: [RE, FF]
stp_codes: [STP01]
maori_level_codes:
  H: 1
  A: 0
headcount_months: [m, J]
exclude_stp_from_maori: false
adult_age: 20
`)
	rules, err := ParseRules(data, roll.DefaultRuleSet())
	require.NoError(t, err)

	assert.Equal(t, []string{"FF", "RE"}, rules.CategoryTypes.Sorted())
	assert.True(t, rules.STPCodes.Has("STP01"))
	assert.False(t, rules.STPCodes.Has("STP02"))
	assert.Equal(t, roll.MLL1, rules.MaoriLevelCodes["H"])
	assert.True(t, rules.IsHeadcountMonth(roll.MonthMarch))
	assert.False(t, rules.ExcludeSTPFromMaori)
	assert.Equal(t, 20, rules.AdultAge)

	// untouched keys keep their defaults
	assert.Equal(t, roll.DefaultMaoriEthnicityCode, rules.MaoriEthnicityCode)
	assert.True(t, rules.MaoriTypes.Has(roll.TypeRegularSpecial))
}

func TestParseRules_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":     "colour: blue\n",
		"bad month":       "headcount_months: [X]\n",
		"bucket too high": "maori_level_codes: {H: 7}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc), roll.DefaultRuleSet())
			assert.Error(t, err)
		})
	}
}

func TestLoadRules_EnvOverrideWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exclude_stp_from_maori: true\n"), 0o600))

	off := false
	rules, err := LoadRules(RulesConfig{File: path, ExcludeSTPFromMaori: &off})
	require.NoError(t, err)
	assert.False(t, rules.ExcludeSTPFromMaori)

	_, err = LoadRules(RulesConfig{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
