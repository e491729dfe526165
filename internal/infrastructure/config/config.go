package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/sandbox"
	"github.com/GriffinCanCode/gamehost/internal/storage/objectstore"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "GAMEHOST"

// Storage backends
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendS3     = "s3"
)

var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `envconfig:"SERVER" yaml:"server" toml:"server"`
	Logging     logging.Config    `envconfig:"LOG" yaml:"logging" toml:"logging"`
	RateLimit   RateLimitConfig   `envconfig:"RATE_LIMIT" yaml:"rate_limit" toml:"rate_limit"`
	Sandbox     sandbox.Config    `envconfig:"SANDBOX" yaml:"sandbox" toml:"sandbox"`
	Storage     StorageConfig     `envconfig:"STORAGE" yaml:"storage" toml:"storage"`
	Remote      ServiceConfig     `envconfig:"REMOTE" yaml:"remote" toml:"remote"`
	Generation  ServiceConfig     `envconfig:"GENERATION" yaml:"generation" toml:"generation"`
	ObjectStore ObjectStoreConfig `envconfig:"S3" yaml:"object_store" toml:"object_store"`
	Analysis    AnalysisConfig    `envconfig:"ANALYSIS" yaml:"analysis" toml:"analysis"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*" yaml:"allowed_origins" toml:"allowed_origins"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout" toml:"-"`
	MetricsEnabled  bool          `envconfig:"METRICS_ENABLED" default:"true" yaml:"metrics_enabled" toml:"metrics_enabled"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RPS" default:"100" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// StorageConfig selects and configures the storage collaborator.
type StorageConfig struct {
	Backend string `envconfig:"BACKEND" default:"local" yaml:"backend" toml:"backend"`
	// Empty selects $XDG_DATA_HOME/gamehost/saved-games
	Dir      string `envconfig:"DIR" yaml:"dir" toml:"dir"`
	MaxSaved int    `envconfig:"MAX_SAVED" default:"20" yaml:"max_saved" toml:"max_saved"`
}

// ServiceConfig configures an HTTP collaborator. An empty BaseURL disables it.
type ServiceConfig struct {
	BaseURL    string        `envconfig:"URL" yaml:"url" toml:"url"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"30s" yaml:"timeout" toml:"-"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"2" yaml:"max_retries" toml:"max_retries"`
	RateLimit  float64       `envconfig:"RATE_LIMIT" default:"0" yaml:"rate_limit" toml:"rate_limit"`
}

// Enabled reports whether the collaborator is configured
func (s ServiceConfig) Enabled() bool {
	return strings.TrimSpace(s.BaseURL) != ""
}

// Client converts to the HTTP client configuration
func (s ServiceConfig) Client() httpclient.Config {
	return httpclient.Config{
		BaseURL:    strings.TrimRight(s.BaseURL, "/"),
		Timeout:    s.Timeout,
		MaxRetries: s.MaxRetries,
		RateLimit:  s.RateLimit,
	}
}

// ObjectStoreConfig configures the S3 storage backend.
type ObjectStoreConfig struct {
	Endpoint  string `envconfig:"ENDPOINT" yaml:"endpoint" toml:"endpoint"`
	Region    string `envconfig:"REGION" default:"us-east-1" yaml:"region" toml:"region"`
	AccessKey string `envconfig:"ACCESS_KEY" yaml:"access_key" toml:"access_key"`
	SecretKey string `envconfig:"SECRET_KEY" yaml:"secret_key" toml:"secret_key"`
	Bucket    string `envconfig:"BUCKET" default:"gamehost" yaml:"bucket" toml:"bucket"`
	Prefix    string `envconfig:"PREFIX" default:"games" yaml:"prefix" toml:"prefix"`
	UseSSL    bool   `envconfig:"USE_SSL" default:"false" yaml:"use_ssl" toml:"use_ssl"`
}

// Store converts to the object store configuration
func (o ObjectStoreConfig) Store() objectstore.Config {
	return objectstore.Config{
		Endpoint:  o.Endpoint,
		Region:    o.Region,
		AccessKey: o.AccessKey,
		SecretKey: o.SecretKey,
		Bucket:    o.Bucket,
		Prefix:    o.Prefix,
		UseSSL:    o.UseSSL,
	}
}

// AnalysisConfig sizes the findings cache of the HTTP API.
type AnalysisConfig struct {
	CacheSize int `envconfig:"CACHE_SIZE" default:"256" yaml:"cache_size" toml:"cache_size"`
}

// Load builds the configuration in three layers: defaults and environment
// (after loading GAMEHOST_ENV_FILE or .env), then the file named by
// GAMEHOST_CONFIG. Values in the file take precedence.
func Load() (*Config, error) {
	envFile := os.Getenv(EnvPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays a YAML or TOML file onto cfg. Keys absent from the file
// keep their current values. TOML cannot express durations, so duration
// fields are YAML or environment only.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendRemote:
		if !c.Remote.Enabled() {
			return fmt.Errorf("storage backend %q requires %s_REMOTE_URL", BackendRemote, EnvPrefix)
		}
	case BackendS3:
		if c.ObjectStore.Endpoint == "" {
			return fmt.Errorf("storage backend %q requires %s_S3_ENDPOINT", BackendS3, EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit rps must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
			MetricsEnabled:  true,
		},
		Logging: logging.DefaultConfig(),
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: sandbox.DefaultConfig(),
		Storage: StorageConfig{
			Backend:  BackendLocal,
			MaxSaved: 20,
		},
		Remote:     ServiceConfig{Timeout: 30 * time.Second, MaxRetries: 2},
		Generation: ServiceConfig{Timeout: 30 * time.Second, MaxRetries: 2},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
			Bucket: "gamehost",
			Prefix: "games",
		},
		Analysis: AnalysisConfig{CacheSize: 256},
	}
}
