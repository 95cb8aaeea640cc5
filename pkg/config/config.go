package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable consumed by the service.
const EnvPrefix = "CARTPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CARTPAY_DB_DSN"
	EnvDBHost = "CARTPAY_DB_HOST"
	EnvDBUser = "CARTPAY_DB_USER"
	EnvDBName = "CARTPAY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	Square   SquareConfig
	Payments PaymentsConfig
	Cron     CronConfig
	Outbox   OutboxConfig
	PubSub   PubSubConfig
	GCP      GCPConfig
	Features FeatureFlagsConfig
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
	Env          string   `envconfig:"CARTPAY_APP_ENV" required:"true"`
	Port         string   `envconfig:"CARTPAY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"CARTPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"CARTPAY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"CARTPAY_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARTPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARTPAY_DB_DSN"`
	Driver string `envconfig:"CARTPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARTPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"CARTPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARTPAY_DB_USER"`
	LegacyPassword string `envconfig:"CARTPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARTPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARTPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARTPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARTPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARTPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTPAY_REDIS_URL" required:"true"`
	Password     string        `envconfig:"CARTPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CARTPAY_STRIPE_API_KEY"`
	Secret string `envconfig:"CARTPAY_STRIPE_SECRET"`
	Env    string `envconfig:"CARTPAY_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken   string `envconfig:"CARTPAY_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"CARTPAY_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"CARTPAY_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"CARTPAY_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PaymentsConfig struct {
	// Gateway selects the adapter driving money movement.
	Gateway string `envconfig:"CARTPAY_PAYMENTS_GATEWAY" default:"stripe"`
	// MinAmountCents maps lowercase currency codes to the smallest chargeable
	// amount, e.g. "usd:50,eur:50,jpy:50".
	MinAmountCents map[string]int64 `envconfig:"CARTPAY_PAYMENTS_MIN_AMOUNT_CENTS" default:"usd:50"`
	// CaptureDelay is how long a delayed-capture intent stays authorized
	// before the capture worker picks it up.
	CaptureDelay time.Duration `envconfig:"CARTPAY_PAYMENTS_CAPTURE_DELAY" default:"72h"`
	// GatewayTimeout bounds every outbound gateway call.
	GatewayTimeout time.Duration `envconfig:"CARTPAY_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	// PlatformFeeBPS is the application fee taken on captured charges,
	// in basis points.
	PlatformFeeBPS int64 `envconfig:"CARTPAY_PAYMENTS_PLATFORM_FEE_BPS" default:"0"`
}

// MinAmountFor returns the minimum chargeable amount for a currency, or zero
// when no floor is configured.
func (p PaymentsConfig) MinAmountFor(currency string) int64 {
	return p.MinAmountCents[strings.ToLower(strings.TrimSpace(currency))]
}

type CronConfig struct {
	Interval     time.Duration `envconfig:"CARTPAY_CRON_INTERVAL" default:"1m"`
	LockKey      string        `envconfig:"CARTPAY_CRON_LOCK_KEY" default:"cartpay:cron:lock"`
	LockTTL      time.Duration `envconfig:"CARTPAY_CRON_LOCK_TTL" default:"5m"`
	CaptureBatch int           `envconfig:"CARTPAY_CRON_CAPTURE_BATCH" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CARTPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CARTPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CARTPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"CARTPAY_PUBSUB_PAYMENTS_TOPIC" default:"cartpay-payment-events"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CARTPAY_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CARTPAY_GCP_CREDENTIALS_JSON"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARTPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARTPAY_AUTO_MIGRATE" default:"false"`
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
