package config

const EnvPrefix = "EVENTS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SyncLockLocal = "local"
	SyncLockRedis = "redis"

	defaultSQLiteDSN = "file:events.db?_foreign_keys=on"
)

const (
	EnvAppEnv   = "EVENTS_APP_ENV"
	EnvPort     = "EVENTS_APP_PORT"
	EnvLogLevel = "EVENTS_LOG_LEVEL"

	EnvDBDSN  = "EVENTS_DB_DSN"
	EnvDBHost = "EVENTS_DB_HOST"
	EnvDBUser = "EVENTS_DB_USER"
	EnvDBName = "EVENTS_DB_NAME"

	EnvRedisURL  = "EVENTS_REDIS_URL"
	EnvUseSQLite = "EVENTS_USE_SQLITE"

	EnvProviderURL    = "EVENTS_PROVIDER_URL"
	EnvProviderAPIKey = "EVENTS_PROVIDER_API_KEY"
	EnvNotifierURL    = "EVENTS_NOTIFIER_URL"
	EnvNotifierAPIKey = "EVENTS_NOTIFIER_API_KEY"

	EnvSyncLock          = "EVENTS_SYNC_LOCK"
	EnvOutboxMaxAttempts = "EVENTS_OUTBOX_MAX_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
