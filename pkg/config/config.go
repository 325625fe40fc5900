package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Commission   CommissionConfig
	FlashSale    FlashSaleConfig
	Orders       OrdersConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// Report every broken section at once instead of one per restart.
	err := multierr.Combine(
		cfg.DB.ensureDSN(),
		cfg.Commission.validate(),
		cfg.JWT.validate(),
		cfg.Outbox.validate(),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETCORE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MARKETCORE_LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string `envconfig:"MARKETCORE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETCORE_DB_DSN"`
	Driver string `envconfig:"MARKETCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETCORE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxMaxAttempts bounds WithRetryTx on serialization failures and deadlocks.
	TxMaxAttempts int `envconfig:"MARKETCORE_DB_TX_MAX_ATTEMPTS" default:"3"`

	// Statements slower than this are logged at warn; zero disables.
	SlowQueryThreshold time.Duration `envconfig:"MARKETCORE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETCORE_REDIS_URL"`
	Address      string        `envconfig:"MARKETCORE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only verifies tokens; issuance belongs to the identity service.
type JWTConfig struct {
	Secret string `envconfig:"MARKETCORE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"MARKETCORE_JWT_ISSUER" required:"true"`
	// Audience is checked only when set.
	Audience string        `envconfig:"MARKETCORE_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"MARKETCORE_JWT_LEEWAY" default:"30s"`
}

func (j JWTConfig) validate() error {
	if j.Leeway < 0 {
		return fmt.Errorf("MARKETCORE_JWT_LEEWAY must not be negative, got %s", j.Leeway)
	}
	return nil
}

type RateLimitConfig struct {
	ReserveWindow    time.Duration `envconfig:"MARKETCORE_RATE_LIMIT_RESERVE_WINDOW" default:"1m"`
	ReserveUserLimit int           `envconfig:"MARKETCORE_RATE_LIMIT_RESERVE_USER_LIMIT" default:"30"`
	ReserveRPS       float64       `envconfig:"MARKETCORE_RATE_LIMIT_RESERVE_RPS" default:"20"`
	ReserveBurst     int           `envconfig:"MARKETCORE_RATE_LIMIT_RESERVE_BURST" default:"40"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETCORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"MARKETCORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETCORE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MARKETCORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic         string `envconfig:"MARKETCORE_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription  string `envconfig:"MARKETCORE_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	PayoutsTopic        string `envconfig:"MARKETCORE_PUBSUB_PAYOUTS_TOPIC" required:"true"`
	PayoutsSubscription string `envconfig:"MARKETCORE_PUBSUB_PAYOUTS_SUBSCRIPTION" required:"true"`
	FlashSalesTopic     string `envconfig:"MARKETCORE_PUBSUB_FLASH_SALES_TOPIC" default:"mc-flash-sale-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETCORE_OUTBOX_RETENTION" default:"168h"`
	DLQRetention   time.Duration `envconfig:"MARKETCORE_OUTBOX_DLQ_RETENTION" default:"720h"`
}

func (o OutboxConfig) validate() error {
	var err error
	if o.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("MARKETCORE_OUTBOX_PUBLISH_BATCH_SIZE must be positive, got %d", o.BatchSize))
	}
	if o.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("MARKETCORE_OUTBOX_MAX_ATTEMPTS must be positive, got %d", o.MaxAttempts))
	}
	return err
}

type CommissionConfig struct {
	// FloorRate applies when neither a vendor override nor an active default exists.
	FloorRate string `envconfig:"MARKETCORE_COMMISSION_FLOOR_RATE" default:"0.10"`
}

// Floor returns the parsed floor rate. Load has already validated it.
func (c CommissionConfig) Floor() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.FloorRate))
	if err != nil {
		return decimal.RequireFromString("0.10")
	}
	return rate
}

func (c CommissionConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.FloorRate))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvCommissionFloorRate, err)
	}
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in (0, 1], got %s", EnvCommissionFloorRate, rate.String())
	}
	return nil
}

type FlashSaleConfig struct {
	SweepSchedule string        `envconfig:"MARKETCORE_FLASH_SALE_SWEEP_SCHEDULE" default:"0 */5 * * * *"`
	HoldTTL       time.Duration `envconfig:"MARKETCORE_FLASH_SALE_HOLD_TTL" default:"10m"`
}

type OrdersConfig struct {
	PendingTTL time.Duration `envconfig:"MARKETCORE_ORDERS_PENDING_TTL" default:"24h"`
}

type CronConfig struct {
	PendingOrderSchedule    string        `envconfig:"MARKETCORE_CRON_PENDING_ORDER_SCHEDULE" default:"0 */15 * * * *"`
	OutboxRetentionSchedule string        `envconfig:"MARKETCORE_CRON_OUTBOX_RETENTION_SCHEDULE" default:"0 30 3 * * *"`
	NotificationSchedule    string        `envconfig:"MARKETCORE_CRON_NOTIFICATION_CLEANUP_SCHEDULE" default:"0 45 3 * * *"`
	NotificationRetention   time.Duration `envconfig:"MARKETCORE_CRON_NOTIFICATION_RETENTION" default:"720h"`
	NotificationPurgeBatch  int           `envconfig:"MARKETCORE_CRON_NOTIFICATION_PURGE_BATCH" default:"500"`
	LockTTL                 time.Duration `envconfig:"MARKETCORE_CRON_LOCK_TTL" default:"5m"`
	RunOnStart              bool          `envconfig:"MARKETCORE_CRON_RUN_ON_START" default:"false"`
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
