package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"AUTH"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Audit     AuditConfig     `yaml:"audit" envconfig:"AUDIT"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" envconfig:"BOOTSTRAP"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT" default:"5000" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"60s"`
}

// Address returns the listen address for the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000" validate:"required_if=EnableCORS true"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/clinic-api.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PathsConfig anchors relative file paths
type PathsConfig struct {
	BaseDir string `yaml:"base_dir" envconfig:"BASE_DIR"`
}

// AuthConfig contains token signing configuration
type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret" envconfig:"ACCESS_SECRET" validate:"required,min=16"`
	RefreshSecret string        `yaml:"refresh_secret" envconfig:"REFRESH_SECRET" validate:"required,min=16,nefield=AccessSecret"`
	AccessTTL     time.Duration `yaml:"access_ttl" envconfig:"ACCESS_TTL" default:"168h" validate:"gt=0"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" envconfig:"REFRESH_TTL" default:"720h" validate:"gt=0"`
	BcryptCost    int           `yaml:"bcrypt_cost" envconfig:"BCRYPT_COST" default:"10" validate:"min=4,max=31"`
}

// DatabaseConfig selects and configures the persistence backend
type DatabaseConfig struct {
	Driver  string        `yaml:"driver" envconfig:"DRIVER" default:"mongo" validate:"oneof=mongo memory"`
	URI     string        `yaml:"uri" envconfig:"URI" default:"mongodb://localhost:27017" validate:"required_if=Driver mongo"`
	Name    string        `yaml:"name" envconfig:"NAME" default:"clinic" validate:"required_if=Driver mongo"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"10s" validate:"gt=0"`
}

// LicenseConfig contains license provisioning configuration
type LicenseConfig struct {
	SecretsFile        string        `yaml:"secrets_file" envconfig:"SECRETS_FILE" default:".env" validate:"required"`
	ProvisionOnStartup bool          `yaml:"provision_on_startup" envconfig:"PROVISION_ON_STARTUP" default:"true"`
	CacheTTL           time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"0s" validate:"gte=0"`
}

// AuditConfig contains audit queue configuration
type AuditConfig struct {
	QueueSize    int           `yaml:"queue_size" envconfig:"QUEUE_SIZE" default:"1024" validate:"min=1"`
	Workers      int           `yaml:"workers" envconfig:"WORKERS" default:"2" validate:"min=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"5s" validate:"gt=0"`
	DrainTimeout time.Duration `yaml:"drain_timeout" envconfig:"DRAIN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// BootstrapConfig seeds the first superadmin account
type BootstrapConfig struct {
	SuperadminEmail    string `yaml:"superadmin_email" envconfig:"SUPERADMIN_EMAIL" validate:"omitempty,email"`
	SuperadminPassword string `yaml:"superadmin_password" envconfig:"SUPERADMIN_PASSWORD" validate:"required_with=SuperadminEmail"`
	SuperadminName     string `yaml:"superadmin_name" envconfig:"SUPERADMIN_NAME" default:"Super Admin"`
}

// Enabled reports whether a superadmin seed is configured
func (b BootstrapConfig) Enabled() bool {
	return b.SuperadminEmail != ""
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName     string `yaml:"service_name" envconfig:"SERVICE_NAME" default:"clinic-api"`
	Environment     string `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TraceExporter   string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none" validate:"oneof=none stdout"`
	MetricsExporter string `yaml:"metrics_exporter" envconfig:"METRICS_EXPORTER" default:"prometheus" validate:"oneof=none prometheus"`
	MetricsPath     string `yaml:"metrics_path" envconfig:"METRICS_PATH" default:"/metrics" validate:"startswith=/"`
}

// Load loads configuration from the .env file, environment variables and config file
func Load() (*Config, error) {
	if err := loadEnvFile(envFilePath()); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg, *Default())
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile exports the entries of a dotenv file. Variables already set in
// the process environment win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func envFilePath() string {
	if p := os.Getenv(EnvPrefix + "_ENV_FILE"); p != "" {
		return p
	}
	return DefaultEnvFile
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs fills every env field still at its default with the file value,
// when the file sets one. Explicit environment values take precedence.
func mergeConfigs(fileConfig, envConfig, defaults Config) Config {
	mergeValue(reflect.ValueOf(&envConfig).Elem(), reflect.ValueOf(fileConfig), reflect.ValueOf(defaults))
	return envConfig
}

func mergeValue(dst, file, def reflect.Value) {
	if dst.Kind() == reflect.Struct {
		for i := 0; i < dst.NumField(); i++ {
			mergeValue(dst.Field(i), file.Field(i), def.Field(i))
		}
		return
	}
	if file.IsZero() {
		return
	}
	if dst.IsZero() || reflect.DeepEqual(dst.Interface(), def.Interface()) {
		dst.Set(file)
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Bootstrap.Enabled() && len(c.Bootstrap.SuperadminPassword) < 8 {
		return errors.New("bootstrap superadmin password must be at least 8 characters")
	}

	// Text logs are for local development only
	if !c.Logging.Development {
		c.Logging.Format = "json"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration. Secrets have no defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/clinic-api.log",
		},
		Auth: AuthConfig{
			AccessTTL:  7 * 24 * time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			BcryptCost: 10,
		},
		Database: DatabaseConfig{
			Driver:  "mongo",
			URI:     "mongodb://localhost:27017",
			Name:    "clinic",
			Timeout: 10 * time.Second,
		},
		License: LicenseConfig{
			SecretsFile:        DefaultEnvFile,
			ProvisionOnStartup: true,
		},
		Audit: AuditConfig{
			QueueSize:    1024,
			Workers:      2,
			WriteTimeout: 5 * time.Second,
			DrainTimeout: 10 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			SuperadminName: "Super Admin",
		},
		Telemetry: TelemetryConfig{
			ServiceName:     AppName,
			Environment:     "development",
			TraceExporter:   "none",
			MetricsExporter: "prometheus",
			MetricsPath:     "/metrics",
		},
	}
}
