// Package config loads application settings from the environment.
//
// A dotenv file (ENV_FILE, or ./.env when present) may pre-populate unset
// variables; real environment variables always win.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Deployment environments.
const (
	EnvLocal      = "LOCAL"
	EnvStaging    = "STAGING"
	EnvProduction = "PRODUCTION"
)

// CORSConfig: CORS_ALLOWED_ORIGINS, empty allows every origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig: ENABLE_HSTS, HSTS_MAX_AGE.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string // DATABASE_DRIVER: sqlite or postgres
	Host     string // DATABASE_HOSTNAME
	Username string // DATABASE_USERNAME
	Password string // DATABASE_PASSWORD
	Port     int    // DATABASE_PORT
	Name     string // DATABASE_NAME
	Path     string // DATABASE_PATH, sqlite file
	LogSQL   bool   // DATABASE_LOG_SQL
}

// DSN renders a PostgreSQL connection string. Empty for sqlite.
func (d DatabaseConfig) DSN() string {
	if d.Driver != "postgres" {
		return ""
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		d.Host, d.Username, d.Password, d.Name, d.Port)
}

// JWTConfig controls how bearer tokens are decoded.
type JWTConfig struct {
	Algorithm       string // ALGORITHMS_JWT
	Secret          string // JWT_SECRET
	VerifySignature bool   // JWT_VERIFY_SIGNATURE
}

// Config is the full application configuration.
type Config struct {
	AppName     string
	APIVersion  string
	Environment string

	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string

	LogLevel       string
	LogPretty      bool
	LogFile        string
	SwaggerEnabled bool
	GzipEnabled    bool
	APIBasePath    string

	Database DatabaseConfig
	JWT      JWTConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

var (
	once    sync.Once
	current Config
)

// Get loads the configuration on first use and returns the cached value on
// every later call. It panics if the first load fails.
func Get() Config {
	once.Do(func() { current = MustLoad() })
	return current
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadEnvFile populates unset environment variables from a dotenv file.
// With an empty path it uses ENV_FILE, then ./.env; a missing default file
// is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("ENV_FILE")
		explicit = path != ""
	}
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file %q: %w", path, err)
		}
		return nil
	}
	return godotenv.Load(path)
}

// Load reads configuration from the environment, applies defaults and
// normalization, and validates the result. On a validation error the
// partially valid Config is returned alongside it.
func Load() (Config, error) {
	if err := LoadEnvFile(""); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:     envString("APP_NAME", "go-service-shell"),
		APIVersion:  envString("API_VERSION", "1.0.0"),
		Environment: strings.ToUpper(envString("ENVIRONMENT", EnvLocal)),

		Port:              envString("PORT", "8080"),
		ReadTimeout:       envDuration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: envDuration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      envDuration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       envDuration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    envInt("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(envString("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(envString("LOG_LEVEL", "info")),
		LogPretty:      envBool("LOG_PRETTY", false),
		LogFile:        envString("LOG_FILE", ""),
		SwaggerEnabled: envBool("SWAGGER_ENABLED", false),
		GzipEnabled:    envBool("GZIP_ENABLED", true),
		APIBasePath:    normalizeBasePath(envString("API_PREFIX", envString("API_BASE_PATH", "/api/v1"))),

		Database: DatabaseConfig{
			Driver:   strings.ToLower(envString("DATABASE_DRIVER", "sqlite")),
			Host:     envString("DATABASE_HOSTNAME", "localhost"),
			Username: envString("DATABASE_USERNAME", "postgres"),
			Password: envString("DATABASE_PASSWORD", ""),
			Port:     envInt("DATABASE_PORT", 5432),
			Name:     envString("DATABASE_NAME", "app"),
			Path:     envString("DATABASE_PATH", "app.db"),
			LogSQL:   envBool("DATABASE_LOG_SQL", false),
		},
		JWT: JWTConfig{
			Algorithm:       strings.ToUpper(envString("ALGORITHMS_JWT", "HS256")),
			Secret:          envString("JWT_SECRET", ""),
			VerifySignature: envBool("JWT_VERIFY_SIGNATURE", false),
		},

		RateRPS:   envFloat("RATE_RPS", 5.0),
		RateBurst: envInt("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
		},
		Security: SecurityConfig{
			EnableHSTS: envBool("ENABLE_HSTS", false),
			HSTSMaxAge: envDuration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			Endpoint:    envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: envString("OTEL_SERVICE_NAME", "go-service-shell"),
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, cfg.Validate()
}
