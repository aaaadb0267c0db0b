package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML and the environment.
type AppConfig struct {
	Port           int                `yaml:"port" validate:"min=1,max=65535"`
	Env            string             `yaml:"env" validate:"oneof=development production test"` // "development" | "production" | "test"
	LogLevel       string             `yaml:"log_level" validate:"oneof=debug info warn error"`
	RedisURL       string             `yaml:"redis_url" validate:"required"`
	Redis          RedisRuntimeConfig `yaml:"redis"`
	Paths          RuntimePathsConfig `yaml:"paths"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	Timezone       string             `yaml:"timezone"`
	Swapi          SwapiConfig        `yaml:"swapi"`
	Analytics      AnalyticsConfig    `yaml:"analytics"`
	RateLimit      RateLimitConfig    `yaml:"rate_limit"`

	baseDir string
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port" validate:"min=1,max=65535"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db" validate:"min=0"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

// SwapiConfig configures the upstream Star Wars API client.
type SwapiConfig struct {
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	TimeoutMS         int     `yaml:"timeout_ms" validate:"min=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

// AnalyticsConfig configures the query-analytics pipeline.
type AnalyticsConfig struct {
	EventTTLSeconds        int    `yaml:"event_ttl_seconds" validate:"min=1"`
	HourCounterTTLSeconds  int    `yaml:"hour_counter_ttl_seconds" validate:"min=1"`
	QueryCounterTTLSeconds int    `yaml:"query_counter_ttl_seconds" validate:"min=1"`
	StatsCacheTTLSeconds   int    `yaml:"stats_cache_ttl_seconds" validate:"min=1"`
	StatsCron              string `yaml:"stats_cron" validate:"required"`
	QueryConcurrency       int    `yaml:"query_concurrency" validate:"min=1"`
	JobAttempts            int    `yaml:"job_attempts" validate:"min=1"`
	QueryKeepCompleted     int    `yaml:"query_keep_completed" validate:"min=0"`
	QueryKeepFailed        int    `yaml:"query_keep_failed" validate:"min=0"`
	StatsKeepCompleted     int    `yaml:"stats_keep_completed" validate:"min=0"`
	StatsKeepFailed        int    `yaml:"stats_keep_failed" validate:"min=0"`
}

type RateLimitConfig struct {
	PerSecond int `yaml:"per_second" validate:"min=0"` // 0 disables the limiter
}

type rawAppConfig struct {
	Port           int                `yaml:"port"`
	Env            string             `yaml:"env"`
	NodeEnv        string             `yaml:"node_env"`
	LogLevel       string             `yaml:"log_level"`
	RedisURL       string             `yaml:"redis_url"`
	Redis          rawRedisConfig     `yaml:"redis"`
	RedisHost      string             `yaml:"redis_host"`
	RedisPort      int                `yaml:"redis_port"`
	Paths          rawPathsConfig     `yaml:"paths"`
	LogDir         string             `yaml:"log_dir"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	Timezone       string             `yaml:"timezone"`
	TZ             string             `yaml:"tz"`
	Swapi          rawSwapiConfig     `yaml:"swapi"`
	Analytics      rawAnalyticsConfig `yaml:"analytics"`
	RateLimit      rawRateLimitConfig `yaml:"rate_limit"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawSwapiConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutMS         int     `yaml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type rawAnalyticsConfig struct {
	EventTTLSeconds        int    `yaml:"event_ttl_seconds"`
	HourCounterTTLSeconds  int    `yaml:"hour_counter_ttl_seconds"`
	QueryCounterTTLSeconds int    `yaml:"query_counter_ttl_seconds"`
	StatsCacheTTLSeconds   int    `yaml:"stats_cache_ttl_seconds"`
	StatsCron              string `yaml:"stats_cron"`
	QueryConcurrency       int    `yaml:"query_concurrency"`
	JobAttempts            int    `yaml:"job_attempts"`
	QueryKeepCompleted     *int   `yaml:"query_keep_completed"`
	QueryKeepFailed        *int   `yaml:"query_keep_failed"`
	StatsKeepCompleted     *int   `yaml:"stats_keep_completed"`
	StatsKeepFailed        *int   `yaml:"stats_keep_failed"`
}

type rawRateLimitConfig struct {
	PerSecond *int `yaml:"per_second"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the YAML file at configPath, applies environment overrides and validates the result.
// A missing file at the default path is not an error: defaults plus environment are used.
func Load(configPath string) (*AppConfig, error) {
	return load(configPath, os.LookupEnv)
}

func load(configPath string, lookup func(string) (string, bool)) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	cfg.baseDir = configBaseDir(path, err == nil)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		raw := rawAppConfig{}
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
		applyRawAppConfig(&cfg, raw)
	case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return nil, err
	}
	finalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field ranges and that the aggregation schedule parses.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Analytics.StatsCron); err != nil {
		return fmt.Errorf("analytics.stats_cron %q: %w", c.Analytics.StatsCron, err)
	}
	return nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		LogLevel: defaultLogLevel,
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Swapi: SwapiConfig{
			BaseURL:           defaultSwapiBaseURL,
			TimeoutMS:         defaultSwapiTimeoutMS,
			RequestsPerSecond: defaultSwapiRPS,
		},
		Analytics: AnalyticsConfig{
			EventTTLSeconds:        defaultEventTTLSeconds,
			HourCounterTTLSeconds:  defaultHourCounterTTLSeconds,
			QueryCounterTTLSeconds: defaultQueryCounterTTLSeconds,
			StatsCacheTTLSeconds:   defaultStatsCacheTTLSeconds,
			StatsCron:              defaultStatsCron,
			QueryConcurrency:       defaultQueryConcurrency,
			JobAttempts:            defaultJobAttempts,
			QueryKeepCompleted:     defaultQueryKeepCompleted,
			QueryKeepFailed:        defaultQueryKeepFailed,
			StatsKeepCompleted:     defaultStatsKeepCompleted,
			StatsKeepFailed:        defaultStatsKeepFailed,
		},
		RateLimit: RateLimitConfig{PerSecond: defaultRateLimitPerSecond},
	}
	finalize(&cfg)
	return cfg
}

func finalize(cfg *AppConfig) {
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.LogLevel = normalizeLogLevel(cfg.LogLevel)
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Swapi.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Swapi.BaseURL), "/")
	cfg.Analytics.StatsCron = strings.TrimSpace(cfg.Analytics.StatsCron)
	cfg.Timezone = strings.TrimSpace(cfg.Timezone)
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	if v := strings.TrimSpace(raw.Swapi.BaseURL); v != "" {
		cfg.Swapi.BaseURL = v
	}
	if raw.Swapi.TimeoutMS != 0 {
		cfg.Swapi.TimeoutMS = raw.Swapi.TimeoutMS
	}
	if raw.Swapi.RequestsPerSecond != 0 {
		cfg.Swapi.RequestsPerSecond = raw.Swapi.RequestsPerSecond
	}

	a := &cfg.Analytics
	ra := raw.Analytics
	setIfPositive(&a.EventTTLSeconds, ra.EventTTLSeconds)
	setIfPositive(&a.HourCounterTTLSeconds, ra.HourCounterTTLSeconds)
	setIfPositive(&a.QueryCounterTTLSeconds, ra.QueryCounterTTLSeconds)
	setIfPositive(&a.StatsCacheTTLSeconds, ra.StatsCacheTTLSeconds)
	setIfPositive(&a.QueryConcurrency, ra.QueryConcurrency)
	setIfPositive(&a.JobAttempts, ra.JobAttempts)
	if v := strings.TrimSpace(ra.StatsCron); v != "" {
		a.StatsCron = v
	}
	setIfSet(&a.QueryKeepCompleted, ra.QueryKeepCompleted)
	setIfSet(&a.QueryKeepFailed, ra.QueryKeepFailed)
	setIfSet(&a.StatsKeepCompleted, ra.StatsKeepCompleted)
	setIfSet(&a.StatsKeepFailed, ra.StatsKeepFailed)

	setIfSet(&cfg.RateLimit.PerSecond, raw.RateLimit.PerSecond)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current
	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(raw.RedisHost); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if raw.RedisPort != 0 {
		cfg.Port = raw.RedisPort
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = raw.Redis.Params
	}
	return cfg
}

func setIfPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setIfSet(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// IsDev reports whether the process runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env == "development" }

// Addr returns the HTTP listen address.
func (c *AppConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// LogDir returns the log directory; a relative path is taken from the config file's directory.
func (c *AppConfig) LogDir() string { return resolvePath(c.baseDir, c.Paths.Logs, defaultLogsSubdir) }

func (c SwapiConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c AnalyticsConfig) EventTTL() time.Duration {
	return time.Duration(c.EventTTLSeconds) * time.Second
}

func (c AnalyticsConfig) HourCounterTTL() time.Duration {
	return time.Duration(c.HourCounterTTLSeconds) * time.Second
}

func (c AnalyticsConfig) QueryCounterTTL() time.Duration {
	return time.Duration(c.QueryCounterTTLSeconds) * time.Second
}

func (c AnalyticsConfig) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}
