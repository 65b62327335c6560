package config

// EnvPrefix namespaces every consentry environment variable.
const EnvPrefix = "CONSENTRY"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Canonical environment variable names, shared with tests and docs.
const (
	EnvAppEnv   = "CONSENTRY_APP_ENV"
	EnvPort     = "CONSENTRY_APP_PORT"
	EnvLogLevel = "CONSENTRY_LOG_LEVEL"

	EnvDBDSN  = "CONSENTRY_DB_DSN"
	EnvDBHost = "CONSENTRY_DB_HOST"
	EnvDBUser = "CONSENTRY_DB_USER"
	EnvDBName = "CONSENTRY_DB_NAME"

	EnvRedisURL = "CONSENTRY_REDIS_URL"

	EnvJWTSecret  = "CONSENTRY_JWT_SECRET"
	EnvJWTIssuer  = "CONSENTRY_JWT_ISSUER"
	EnvJWTExpMins = "CONSENTRY_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "CONSENTRY_GCP_PROJECT_ID"

	EnvConsentBaseLocale = "CONSENTRY_CONSENT_BASE_LOCALE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
