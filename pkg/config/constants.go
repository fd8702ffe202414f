package config

// EnvPrefix is the envconfig prefix for every variable the platform reads.
const EnvPrefix = "oyunkod"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "OYUNKOD_DB_DSN"
	EnvDBHost = "OYUNKOD_DB_HOST"
	EnvDBUser = "OYUNKOD_DB_USER"
	EnvDBName = "OYUNKOD_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
