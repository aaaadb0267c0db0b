package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenDefaultFileMissing(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.Analytics.EventTTL())
	assert.Equal(t, 24*time.Hour, cfg.Analytics.HourCounterTTL())
	assert.Equal(t, 24*time.Hour, cfg.Analytics.QueryCounterTTL())
	assert.Equal(t, 10*time.Minute, cfg.Analytics.StatsCacheTTL())
	assert.Equal(t, "*/5 * * * *", cfg.Analytics.StatsCron)
	assert.Equal(t, 10, cfg.Analytics.QueryConcurrency)
	assert.Equal(t, 100, cfg.Analytics.QueryKeepCompleted)
	assert.Equal(t, 50, cfg.Analytics.QueryKeepFailed)
	assert.Equal(t, 5*time.Second, cfg.Swapi.Timeout())
	assert.Equal(t, "https://swapi.dev/api", cfg.Swapi.BaseURL)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yml"), envMap(nil))
	require.Error(t, err)
}

func TestLoad_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
port: 8080
node_env: production
redis:
  host: cache.internal
  port: 6380
  db: 2
swapi:
  base_url: https://swapi.example/api/
analytics:
  stats_cache_ttl_seconds: 120
  query_concurrency: 4
  query_keep_completed: 0
`)
	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "redis://cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, "https://swapi.example/api", cfg.Swapi.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Analytics.StatsCacheTTL())
	assert.Equal(t, 4, cfg.Analytics.QueryConcurrency)
	assert.Equal(t, 0, cfg.Analytics.QueryKeepCompleted)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "prot: 1\n")
	_, err := load(path, envMap(nil))
	require.Error(t, err)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "redis_url: redis://from-file:6379/0\n")
	cfg, err := load(path, envMap(map[string]string{
		EnvRedisHost:        "redis",
		EnvRedisPort:        "6390",
		EnvHourCounterTTL:   "3600",
		EnvQueryCounterTTL:  "7200",
		EnvQueryConcurrency: "3",
		EnvStatsCron:        "*/10 * * * *",
		EnvSwapiTimeout:     "1500",
		EnvLogLevel:         "WARNING",
	}))
	require.NoError(t, err)

	assert.Equal(t, "redis://redis:6390/0", cfg.RedisURL)
	assert.Equal(t, time.Hour, cfg.Analytics.HourCounterTTL())
	assert.Equal(t, 2*time.Hour, cfg.Analytics.QueryCounterTTL())
	assert.Equal(t, 3, cfg.Analytics.QueryConcurrency)
	assert.Equal(t, "*/10 * * * *", cfg.Analytics.StatsCron)
	assert.Equal(t, 1500*time.Millisecond, cfg.Swapi.Timeout())
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_RedisURLEnvWins(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := load("", envMap(map[string]string{
		EnvRedisHost: "ignored",
		EnvRedisURL:  "redis://primary:6379/1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "redis://primary:6379/1", cfg.RedisURL)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"non-numeric port": {EnvPort: "abc"},
		"port range":       {EnvPort: "70000"},
		"bad cron":         {EnvStatsCron: "every five minutes"},
		"zero concurrency": {EnvQueryConcurrency: "0"},
		"bad env":          {EnvNodeEnv: "staging"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			_, err := load("", envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLogDir_RelativeToConfigFile(t *testing.T) {
	path := writeConfig(t, "log_dir: var/log\n")

	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "var", "log"), cfg.LogDir())
}

func TestLogDir_AbsoluteAndDefault(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "swlogs")
	cfg, err := load(writeConfig(t, "paths:\n  logs: "+abs+"\n"), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.LogDir())

	path := writeConfig(t, "port: 3001\n")
	cfg, err = load(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "logs"), cfg.LogDir())
}

func TestLoad_EnvAndLevelAliases(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := load("", envMap(map[string]string{EnvNodeEnv: "prod", EnvLogLevel: "verbose"}))
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.IsDev())
}
