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
	Consent      ConsentConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"CONSENTRY_APP_ENV" required:"true"`
	Port         string `envconfig:"CONSENTRY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CONSENTRY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CONSENTRY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CONSENTRY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CONSENTRY_DB_DSN"`
	Driver string `envconfig:"CONSENTRY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CONSENTRY_DB_HOST"`
	Port     int    `envconfig:"CONSENTRY_DB_PORT" default:"5432"`
	User     string `envconfig:"CONSENTRY_DB_USER"`
	Password string `envconfig:"CONSENTRY_DB_PASSWORD"`
	Name     string `envconfig:"CONSENTRY_DB_NAME"`
	SSLMode  string `envconfig:"CONSENTRY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CONSENTRY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CONSENTRY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONSENTRY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONSENTRY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CONSENTRY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CONSENTRY_REDIS_ADDR"`
	Password     string        `envconfig:"CONSENTRY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CONSENTRY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CONSENTRY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CONSENTRY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CONSENTRY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CONSENTRY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CONSENTRY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CONSENTRY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CONSENTRY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CONSENTRY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// ConsentConfig tunes the policy engine.
type ConsentConfig struct {
	BaseLocale           string        `envconfig:"CONSENTRY_CONSENT_BASE_LOCALE" default:"ko"`
	RequirementsCacheTTL time.Duration `envconfig:"CONSENTRY_CONSENT_REQUIREMENTS_CACHE_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CONSENTRY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CONSENTRY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CONSENTRY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CONSENTRY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ConsentTopic        string `envconfig:"CONSENTRY_PUBSUB_CONSENT_TOPIC" default:"consent-events"`
	ConsentSubscription string `envconfig:"CONSENTRY_PUBSUB_CONSENT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CONSENTRY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CONSENTRY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CONSENTRY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	pieces := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if pieces[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
