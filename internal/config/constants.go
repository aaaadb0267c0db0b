package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 3000
	defaultEnv        = "development"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultSwapiBaseURL   = "https://swapi.dev/api"
	defaultSwapiTimeoutMS = 5000
	defaultSwapiRPS       = 20

	defaultEventTTLSeconds        = 86400
	defaultHourCounterTTLSeconds  = 86400
	defaultQueryCounterTTLSeconds = 86400
	defaultStatsCacheTTLSeconds   = 600
	defaultStatsCron              = "*/5 * * * *"
	defaultQueryConcurrency       = 10
	defaultJobAttempts            = 3
	defaultQueryKeepCompleted     = 100
	defaultQueryKeepFailed        = 50
	defaultStatsKeepCompleted     = 10
	defaultStatsKeepFailed        = 5

	defaultRateLimitPerSecond = 50
	defaultLogLevel           = "info"
)
