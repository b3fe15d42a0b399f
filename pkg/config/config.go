package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Terminal     TerminalConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Remote       RemoteConfig
	Sync         SyncConfig
	Checkout     CheckoutConfig
	MobileMoney  MobileMoneyConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POS_APP_ENV" default:"dev"`
	Port         string `envconfig:"POS_APP_PORT" default:"8787"`
	LogLevel     string `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"POS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type TerminalConfig struct {
	ID       string `envconfig:"POS_TERMINAL_ID"`
	BranchID string `envconfig:"POS_BRANCH_ID"`
}

type DBConfig struct {
	Driver string `envconfig:"POS_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"POS_DB_DSN" default:"file:pos-agent.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"`

	MaxOpenConns    int           `envconfig:"POS_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"POS_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"POS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the local queue lives in an embedded SQLite file.
func (d DBConfig) IsSQLite() bool {
	return strings.EqualFold(d.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL            string        `envconfig:"POS_REDIS_URL"`
	Address        string        `envconfig:"POS_REDIS_ADDR"`
	Password       string        `envconfig:"POS_REDIS_PASSWORD"`
	DB             int           `envconfig:"POS_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"POS_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns   int           `envconfig:"POS_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout    time.Duration `envconfig:"POS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"POS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"POS_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"POS_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// Enabled reports whether a Redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"POS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"POS_JWT_ISSUER" default:"pos-backoffice"`
}

type RemoteConfig struct {
	BaseURL        string        `envconfig:"POS_REMOTE_BASE_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"POS_REMOTE_REQUEST_TIMEOUT" default:"15s"`
	ServiceToken   string        `envconfig:"POS_REMOTE_SERVICE_TOKEN"`
}

type SyncConfig struct {
	AutoInterval time.Duration `envconfig:"POS_SYNC_AUTO_INTERVAL" default:"1m"`
	MaxBackoff   time.Duration `envconfig:"POS_SYNC_MAX_BACKOFF" default:"10m"`
	StaleAfter   time.Duration `envconfig:"POS_SYNC_STALE_AFTER" default:"72h"`
	LockMode     string        `envconfig:"POS_SYNC_LOCK_MODE" default:"local"`
	LockTTL      time.Duration `envconfig:"POS_SYNC_LOCK_TTL" default:"5m"`
	SubmitRate   float64       `envconfig:"POS_SYNC_SUBMIT_RATE" default:"5"`
	SubmitBurst  int           `envconfig:"POS_SYNC_SUBMIT_BURST" default:"1"`
}

// UsesRedisLock reports whether sync passes coordinate through Redis.
func (s SyncConfig) UsesRedisLock() bool {
	return strings.EqualFold(s.LockMode, SyncLockRedis)
}

type CheckoutConfig struct {
	AckDelay time.Duration `envconfig:"POS_CHECKOUT_ACK_DELAY" default:"3s"`
	Currency string        `envconfig:"POS_CHECKOUT_CURRENCY" default:"KES"`
}

type MobileMoneyConfig struct {
	CountryCode string `envconfig:"POS_MOBILE_MONEY_COUNTRY_CODE" default:"254"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"POS_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"POS_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"POS_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether card payments can be taken through Square.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

type GCPConfig struct {
	ProjectID string `envconfig:"POS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SyncTriggerSubscription string `envconfig:"POS_PUBSUB_SYNC_TRIGGER_SUBSCRIPTION"`
	SyncEventsTopic         string `envconfig:"POS_PUBSUB_SYNC_EVENTS_TOPIC"`
}

// Enabled reports whether the back-office messaging bridge should run.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.SyncTriggerSubscription) != "" || strings.TrimSpace(p.SyncEventsTopic) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"POS_AUTO_MIGRATE" default:"true"`
}

func (c *Config) validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case DBDriverSQLite, DBDriverPostgres:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvDBDriver, DBDriverSQLite, DBDriverPostgres)
	}
	switch strings.ToLower(c.Sync.LockMode) {
	case SyncLockLocal:
	case SyncLockRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=redis requires %s or %s", EnvSyncLockMode, EnvRedisURL, EnvRedisAddr)
		}
		// the lock is renewed before each resubmission, so it must outlive one
		if c.Sync.LockTTL <= c.Remote.RequestTimeout {
			return fmt.Errorf("%s must exceed %s", EnvSyncLockTTL, EnvRemoteRequestTimeout)
		}
	default:
		return fmt.Errorf("%s must be %q or %q", EnvSyncLockMode, SyncLockLocal, SyncLockRedis)
	}
	if c.PubSub.Enabled() && strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s is required when pubsub is configured", EnvGCPProjectID)
	}
	if c.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvRemoteRequestTimeout)
	}
	return nil
}
