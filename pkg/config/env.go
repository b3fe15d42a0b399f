package config

const EnvPrefix = "POS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	SyncLockLocal = "local"
	SyncLockRedis = "redis"
)

const (
	EnvAppEnv                = "POS_APP_ENV"
	EnvPort                  = "POS_APP_PORT"
	EnvLogLevel              = "POS_LOG_LEVEL"
	EnvTerminalID            = "POS_TERMINAL_ID"
	EnvBranchID              = "POS_BRANCH_ID"
	EnvDBDriver              = "POS_DB_DRIVER"
	EnvDBDSN                 = "POS_DB_DSN"
	EnvRedisURL              = "POS_REDIS_URL"
	EnvRedisAddr             = "POS_REDIS_ADDR"
	EnvJWTSecret             = "POS_JWT_SECRET"
	EnvJWTIssuer             = "POS_JWT_ISSUER"
	EnvRemoteBaseURL         = "POS_REMOTE_BASE_URL"
	EnvRemoteRequestTimeout  = "POS_REMOTE_REQUEST_TIMEOUT"
	EnvSyncAutoInterval      = "POS_SYNC_AUTO_INTERVAL"
	EnvSyncLockMode          = "POS_SYNC_LOCK_MODE"
	EnvSyncLockTTL           = "POS_SYNC_LOCK_TTL"
	EnvSyncStaleAfter        = "POS_SYNC_STALE_AFTER"
	EnvCheckoutAckDelay      = "POS_CHECKOUT_ACK_DELAY"
	EnvSquareAccessToken     = "POS_SQUARE_ACCESS_TOKEN"
	EnvGCPProjectID          = "POS_GCP_PROJECT_ID"
	EnvPubSubSyncTriggerSub  = "POS_PUBSUB_SYNC_TRIGGER_SUBSCRIPTION"
	EnvPubSubSyncEventsTopic = "POS_PUBSUB_SYNC_EVENTS_TOPIC"
)
