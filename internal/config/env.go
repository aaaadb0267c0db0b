package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variable names honoured on top of the YAML file.
const (
	EnvPort               = "PORT"
	EnvNodeEnv            = "NODE_ENV"
	EnvEnv                = "ENV"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogDir             = "LOG_DIR"
	EnvRedisURL           = "REDIS_URL"
	EnvRedisHost          = "REDIS_HOST"
	EnvRedisPort          = "REDIS_PORT"
	EnvHourCounterTTL     = "HOUR_COUNTER_EXPIRATION"
	EnvQueryCounterTTL    = "QUERY_COUNTER_EXPIRATION"
	EnvEventTTL           = "EVENT_EXPIRATION"
	EnvStatsCacheTTL      = "STATS_CACHE_EXPIRATION"
	EnvStatsCron          = "STATS_CRON"
	EnvQueryConcurrency   = "QUERY_CONCURRENCY"
	EnvSwapiBaseURL       = "SWAPI_BASE_URL"
	EnvSwapiTimeout       = "SWAPI_TIMEOUT"
	EnvTimezone           = "TIMEZONE"
	EnvTZ                 = "TZ"
	EnvRateLimitPerSecond = "RATE_LIMIT_PER_SECOND"
)

func applyEnvOverrides(cfg *AppConfig, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}
	intVar := func(name string, dst *int) error {
		v, ok := get(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %q is not an integer", name, v)
		}
		*dst = n
		return nil
	}

	if err := intVar(EnvPort, &cfg.Port); err != nil {
		return err
	}
	if v, ok := get(EnvEnv); ok {
		cfg.Env = v
	}
	if v, ok := get(EnvNodeEnv); ok {
		cfg.Env = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := get(EnvLogDir); ok {
		cfg.Paths.Logs = v
	}
	if v, ok := get(EnvRedisHost); ok {
		cfg.Redis.Host = v
		cfg.Redis.URL = ""
	}
	if v, ok := get(EnvRedisURL); ok {
		cfg.Redis.URL = v
	}
	if err := intVar(EnvRedisPort, &cfg.Redis.Port); err != nil {
		return err
	}

	a := &cfg.Analytics
	for name, dst := range map[string]*int{
		EnvHourCounterTTL:     &a.HourCounterTTLSeconds,
		EnvQueryCounterTTL:    &a.QueryCounterTTLSeconds,
		EnvEventTTL:           &a.EventTTLSeconds,
		EnvStatsCacheTTL:      &a.StatsCacheTTLSeconds,
		EnvQueryConcurrency:   &a.QueryConcurrency,
		EnvSwapiTimeout:       &cfg.Swapi.TimeoutMS,
		EnvRateLimitPerSecond: &cfg.RateLimit.PerSecond,
	} {
		if err := intVar(name, dst); err != nil {
			return err
		}
	}
	if v, ok := get(EnvStatsCron); ok {
		a.StatsCron = v
	}
	if v, ok := get(EnvSwapiBaseURL); ok {
		cfg.Swapi.BaseURL = v
	}
	if v, ok := get(EnvTZ); ok {
		cfg.Timezone = v
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Timezone = v
	}
	return nil
}
