package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "platewise"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PLATEWISE_DB_DSN"
	EnvDBHost = "PLATEWISE_DB_HOST"
	EnvDBUser = "PLATEWISE_DB_USER"
	EnvDBName = "PLATEWISE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	Secrets      SecretsConfig
	PubSub       PubSubConfig
	Ordering     OrderingConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"PLATEWISE_APP_ENV" required:"true"`
	Port         string `envconfig:"PLATEWISE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLATEWISE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLATEWISE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PLATEWISE_DB_DSN"`
	Driver string `envconfig:"PLATEWISE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PLATEWISE_DB_HOST"`
	LegacyPort     int    `envconfig:"PLATEWISE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PLATEWISE_DB_USER"`
	LegacyPassword string `envconfig:"PLATEWISE_DB_PASSWORD"`
	LegacyName     string `envconfig:"PLATEWISE_DB_NAME"`
	LegacySSLMode  string `envconfig:"PLATEWISE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLATEWISE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLATEWISE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLATEWISE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLATEWISE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLATEWISE_REDIS_URL"`
	Address      string        `envconfig:"PLATEWISE_REDIS_ADDR"`
	Password     string        `envconfig:"PLATEWISE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLATEWISE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLATEWISE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLATEWISE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLATEWISE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLATEWISE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLATEWISE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PLATEWISE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PLATEWISE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PLATEWISE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type SecretsConfig struct {
	// Disabled skips the Secret Manager source entirely; credentials then
	// resolve from inline distributor settings only.
	Disabled bool `envconfig:"PLATEWISE_SECRETS_DISABLED" default:"false"`
}

type PubSubConfig struct {
	PriceTopic        string `envconfig:"PLATEWISE_PUBSUB_PRICE_TOPIC" default:"pw-price-observations"`
	PriceSubscription string `envconfig:"PLATEWISE_PUBSUB_PRICE_SUBSCRIPTION"`
}

type OrderingConfig struct {
	RequestTimeout    time.Duration `envconfig:"PLATEWISE_ORDERING_REQUEST_TIMEOUT" default:"30s"`
	SearchCacheTTL    time.Duration `envconfig:"PLATEWISE_ORDERING_SEARCH_CACHE_TTL" default:"60s"`
	DefaultSearchSize int           `envconfig:"PLATEWISE_ORDERING_DEFAULT_SEARCH_SIZE" default:"20"`

	// Search fan-out hits live portals, so the endpoint carries its own
	// fixed-window ceiling per client IP. Zero disables it.
	SearchRateLimit  int64         `envconfig:"PLATEWISE_ORDERING_SEARCH_RATE_LIMIT" default:"30"`
	SearchRateWindow time.Duration `envconfig:"PLATEWISE_ORDERING_SEARCH_RATE_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PLATEWISE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PLATEWISE_AUTO_MIGRATE" default:"false"`
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
