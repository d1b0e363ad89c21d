package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// EnvPrefix is passed to envconfig; variable names are fully qualified in tags.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "TRADEYARD_APP_ENV"
	EnvDBDSN  = "TRADEYARD_DB_DSN"
	EnvDBHost = "TRADEYARD_DB_HOST"
	EnvDBUser = "TRADEYARD_DB_USER"
	EnvDBName = "TRADEYARD_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Checkout CheckoutConfig
	Gateway  GatewayConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Flags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADEYARD_APP_ENV" required:"true"`
	Port         string `envconfig:"TRADEYARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRADEYARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADEYARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRADEYARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRADEYARD_DB_DSN"`
	Driver string `envconfig:"TRADEYARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRADEYARD_DB_HOST"`
	LegacyPort     int    `envconfig:"TRADEYARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRADEYARD_DB_USER"`
	LegacyPassword string `envconfig:"TRADEYARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRADEYARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRADEYARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRADEYARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEYARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEYARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEYARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEYARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRADEYARD_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEYARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEYARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEYARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEYARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEYARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEYARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEYARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers verification of access tokens minted by the identity
// service upstream. This service never issues tokens.
type JWTConfig struct {
	Secret string `envconfig:"TRADEYARD_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TRADEYARD_JWT_ISSUER" required:"true"`
}

// CheckoutConfig drives the reservation and settlement engines. The fee rate
// is read once per reservation and locked into the order record.
type CheckoutConfig struct {
	PlatformFeeRate   string        `envconfig:"TRADEYARD_CHECKOUT_PLATFORM_FEE_RATE" default:"0.10"`
	ReservationWindow time.Duration `envconfig:"TRADEYARD_CHECKOUT_RESERVATION_WINDOW" default:"3m"`
	RecoveryInterval  time.Duration `envconfig:"TRADEYARD_CHECKOUT_RECOVERY_INTERVAL" default:"1m"`
	RecoveryBatchSize int           `envconfig:"TRADEYARD_CHECKOUT_RECOVERY_BATCH" default:"100"`
}

// FeeRate parses the configured platform fee fraction.
func (c CheckoutConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.PlatformFeeRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c CheckoutConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.PlatformFeeRate))
	if err != nil {
		return fmt.Errorf("invalid platform fee rate %q: %w", c.PlatformFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate %q must be in [0,1)", c.PlatformFeeRate)
	}
	if c.ReservationWindow <= 0 {
		return fmt.Errorf("reservation window must be positive")
	}
	if c.RecoveryBatchSize <= 0 {
		return fmt.Errorf("recovery batch size must be positive")
	}
	return nil
}

type GatewayConfig struct {
	AccessToken   string `envconfig:"TRADEYARD_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"TRADEYARD_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"TRADEYARD_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"TRADEYARD_SQUARE_WEBHOOK_SECRET"`
}

// Environment returns the normalized gateway environment.
func (g GatewayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TRADEYARD_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TRADEYARD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TRADEYARD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"TRADEYARD_PUBSUB_ORDERS_TOPIC" default:"ty-order-events"`
	NotificationTopic        string `envconfig:"TRADEYARD_PUBSUB_NOTIFICATION_TOPIC" default:"ty-notification-events"`
	NotificationSubscription string `envconfig:"TRADEYARD_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TRADEYARD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TRADEYARD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TRADEYARD_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRADEYARD_AUTO_MIGRATE" default:"false"`
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
