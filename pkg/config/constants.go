package config

const (
	EnvPrefix = "MARKETCORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MARKETCORE_APP_ENV"
	EnvPort     = "MARKETCORE_APP_PORT"
	EnvLogLevel = "MARKETCORE_LOG_LEVEL"

	EnvDBDSN  = "MARKETCORE_DB_DSN"
	EnvDBHost = "MARKETCORE_DB_HOST"
	EnvDBUser = "MARKETCORE_DB_USER"
	EnvDBName = "MARKETCORE_DB_NAME"

	EnvRedisURL = "MARKETCORE_REDIS_URL"

	EnvJWTSecret = "MARKETCORE_JWT_SECRET"
	EnvJWTIssuer = "MARKETCORE_JWT_ISSUER"

	EnvGCPProjectID = "MARKETCORE_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic      = "MARKETCORE_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub        = "MARKETCORE_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubPayoutsTopic     = "MARKETCORE_PUBSUB_PAYOUTS_TOPIC"
	EnvPubSubPayoutsSub       = "MARKETCORE_PUBSUB_PAYOUTS_SUBSCRIPTION"
	EnvCommissionFloorRate    = "MARKETCORE_COMMISSION_FLOOR_RATE"
	EnvOrdersPendingTTL       = "MARKETCORE_ORDERS_PENDING_TTL"
	EnvFlashSaleSweepSchedule = "MARKETCORE_FLASH_SALE_SWEEP_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
