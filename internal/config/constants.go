package config

// Application constants
const (
	// Application Info
	AppName    = "clinic-api"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. CLINIC_SERVER_PORT
	EnvPrefix = "CLINIC"

	// DefaultEnvFile is the dotenv file read at startup and used as the license secrets file
	DefaultEnvFile = ".env"

	// LicenseKeyVar is the secrets-file entry that mirrors the license key
	LicenseKeyVar = "LICENSE_KEY"

	// API Endpoints
	APIBasePath    = "/api"
	HealthEndpoint = "/api/health"
)
