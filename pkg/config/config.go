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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Dispatch     DispatchConfig
	Poller       PollerConfig
	Vendors      VendorsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Tasks        TasksConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OYUNKOD_APP_ENV" required:"true"`
	Port         string `envconfig:"OYUNKOD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OYUNKOD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OYUNKOD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"OYUNKOD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"OYUNKOD_DB_DSN"`
	Driver string `envconfig:"OYUNKOD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OYUNKOD_DB_HOST"`
	LegacyPort     int    `envconfig:"OYUNKOD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OYUNKOD_DB_USER"`
	LegacyPassword string `envconfig:"OYUNKOD_DB_PASSWORD"`
	LegacyName     string `envconfig:"OYUNKOD_DB_NAME"`
	LegacySSLMode  string `envconfig:"OYUNKOD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OYUNKOD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OYUNKOD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OYUNKOD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OYUNKOD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OYUNKOD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OYUNKOD_REDIS_ADDR"`
	Password     string        `envconfig:"OYUNKOD_REDIS_PASSWORD"`
	DB           int           `envconfig:"OYUNKOD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OYUNKOD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OYUNKOD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OYUNKOD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OYUNKOD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OYUNKOD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"OYUNKOD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"OYUNKOD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"OYUNKOD_JWT_EXPIRATION_MINUTES" default:"60"`
}

// FeatureFlagsConfig holds the static defaults for the runtime flag gate.
// Redis overrides may flip them without a restart; the dispatcher snapshots
// the resolved values once per transaction.
type FeatureFlagsConfig struct {
	USDCostEnforcement     bool `envconfig:"OYUNKOD_FLAG_USD_COST_ENFORCEMENT" default:"false"`
	ChainStatusPropagation bool `envconfig:"OYUNKOD_FLAG_CHAIN_STATUS_PROPAGATION" default:"true"`
	AutoFallbackRouting    bool `envconfig:"OYUNKOD_FLAG_AUTO_FALLBACK_ROUTING" default:"false"`
	ZnetSimulate           bool `envconfig:"OYUNKOD_FLAG_ZNET_SIMULATE" default:"false"`
	AutoMigrate            bool `envconfig:"OYUNKOD_AUTO_MIGRATE" default:"false"`
	UseSQLite              bool `envconfig:"OYUNKOD_USE_SQLITE" default:"false"`
}

type DispatchConfig struct {
	MaxAttempts   int           `envconfig:"OYUNKOD_DISPATCH_MAX_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `envconfig:"OYUNKOD_DISPATCH_RETRY_BACKOFF" default:"10s"`
	MaxChainDepth int           `envconfig:"OYUNKOD_DISPATCH_MAX_CHAIN_DEPTH" default:"16"`
	VendorTimeout time.Duration `envconfig:"OYUNKOD_DISPATCH_VENDOR_TIMEOUT" default:"20s"`
}

type PollerConfig struct {
	Interval     time.Duration `envconfig:"OYUNKOD_POLLER_INTERVAL" default:"10s"`
	BatchSize    int           `envconfig:"OYUNKOD_POLLER_BATCH_SIZE" default:"50"`
	MinAge       time.Duration `envconfig:"OYUNKOD_POLLER_MIN_AGE" default:"1m"`
	Budget       time.Duration `envconfig:"OYUNKOD_POLLER_BUDGET" default:"24h"`
	LockTTL      time.Duration `envconfig:"OYUNKOD_POLLER_LOCK_TTL" default:"1m"`
	VerboseEvery int           `envconfig:"OYUNKOD_POLLER_VERBOSE_EVERY" default:"10"`
}

type VendorsConfig struct {
	HTTPTimeout time.Duration `envconfig:"OYUNKOD_VENDOR_HTTP_TIMEOUT" default:"20s"`
	UserAgent   string        `envconfig:"OYUNKOD_VENDOR_USER_AGENT" default:"oyunkod-dispatch/1.0"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"OYUNKOD_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DispatchTopic        string `envconfig:"OYUNKOD_PUBSUB_DISPATCH_TOPIC" default:"oyk-dispatch-tasks"`
	DispatchSubscription string `envconfig:"OYUNKOD_PUBSUB_DISPATCH_SUBSCRIPTION" default:"oyk-dispatch-tasks-worker"`
}

type TasksConfig struct {
	BatchSize    int           `envconfig:"OYUNKOD_TASKS_CLAIM_BATCH_SIZE" default:"20"`
	PollInterval time.Duration `envconfig:"OYUNKOD_TASKS_POLL_INTERVAL" default:"500ms"`
	MaxAttempts  int           `envconfig:"OYUNKOD_TASKS_MAX_ATTEMPTS" default:"3"`
	BackoffBase  time.Duration `envconfig:"OYUNKOD_TASKS_BACKOFF_BASE" default:"10s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
