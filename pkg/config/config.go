package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Upstream     UpstreamConfig
	Notifier     NotifierConfig
	Sync         SyncConfig
	Outbox       OutboxConfig
	Seats        SeatsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVENTS_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTS_APP_PORT" default:"8000"`
	LogLevel     string `envconfig:"EVENTS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"EVENTS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"EVENTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTS_DB_DSN"`
	Driver string `envconfig:"EVENTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTS_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTS_DB_USER"`
	LegacyPassword string `envconfig:"EVENTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional: without a URL or address the seat cache is
// bypassed and the sync job falls back to the in-process lock.
type RedisConfig struct {
	URL          string        `envconfig:"EVENTS_REDIS_URL"`
	Address      string        `envconfig:"EVENTS_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EVENTS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EVENTS_AUTO_MIGRATE" default:"false"`
}

type UpstreamConfig struct {
	BaseURL string        `envconfig:"EVENTS_PROVIDER_URL" required:"true"`
	APIKey  string        `envconfig:"EVENTS_PROVIDER_API_KEY"`
	Timeout time.Duration `envconfig:"EVENTS_PROVIDER_TIMEOUT" default:"30s"`

	BreakerMaxRequests         uint32        `envconfig:"EVENTS_PROVIDER_BREAKER_MAX_REQUESTS" default:"1"`
	BreakerInterval            time.Duration `envconfig:"EVENTS_PROVIDER_BREAKER_INTERVAL" default:"1m"`
	BreakerTimeout             time.Duration `envconfig:"EVENTS_PROVIDER_BREAKER_TIMEOUT" default:"30s"`
	BreakerConsecutiveFailures uint32        `envconfig:"EVENTS_PROVIDER_BREAKER_CONSECUTIVE_FAILURES" default:"5"`
}

type NotifierConfig struct {
	BaseURL string        `envconfig:"EVENTS_NOTIFIER_URL" required:"true"`
	APIKey  string        `envconfig:"EVENTS_NOTIFIER_API_KEY"`
	Timeout time.Duration `envconfig:"EVENTS_NOTIFIER_TIMEOUT" default:"30s"`
}

type SyncConfig struct {
	Interval     time.Duration `envconfig:"EVENTS_SYNC_INTERVAL" default:"24h"`
	InitialDelay time.Duration `envconfig:"EVENTS_SYNC_INITIAL_DELAY" default:"10s"`
	BatchSize    int           `envconfig:"EVENTS_SYNC_BATCH_SIZE" default:"500"`
	LockMode     string        `envconfig:"EVENTS_SYNC_LOCK" default:"local"`
	LockTTL      time.Duration `envconfig:"EVENTS_SYNC_LOCK_TTL" default:"2h"`
}

// UsesRedisLock reports whether the periodic sync job should coordinate
// through Redis instead of the in-process lock.
func (s SyncConfig) UsesRedisLock() bool {
	return strings.EqualFold(strings.TrimSpace(s.LockMode), SyncLockRedis)
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVENTS_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVENTS_OUTBOX_POLL_MS" default:"5000"`
	MaxAttempts    int `envconfig:"EVENTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SeatsConfig struct {
	CacheTTL time.Duration `envconfig:"EVENTS_SEATS_CACHE_TTL" default:"30s"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
