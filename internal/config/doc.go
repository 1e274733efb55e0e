// Package config provides centralized configuration management for the clinic API.
// It handles loading configuration from multiple sources, validation, and provides
// a type-safe API for accessing configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Process environment variables (highest priority)
//	2. The .env file (CLINIC_ENV_FILE overrides the location)
//	3. A YAML configuration file (CLINIC_CONFIG_FILE, config.yaml or configs/config.yaml)
//	4. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern CLINIC_<SECTION>_<FIELD>:
//
//	CLINIC_SERVER_PORT=5000
//	CLINIC_AUTH_ACCESS_SECRET=...
//	CLINIC_AUTH_REFRESH_SECRET=...
//	CLINIC_DATABASE_DRIVER=mongo
//	CLINIC_DATABASE_URI=mongodb://localhost:27017
//	CLINIC_LICENSE_SECRETS_FILE=.env
//	CLINIC_LOGGING_LEVEL=info
//
// The .env file doubles as the license secrets file: the license key is
// mirrored into it as LICENSE_KEY.
//
// # Validation
//
// Struct tags are checked with go-playground/validator at load time. The two
// token secrets are required and must differ.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Tests build a configuration with config.Default() and fill the secrets.
package config
