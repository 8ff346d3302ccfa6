package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// DevJWTSecret signs tokens outside production when JWT_SECRET is unset.
const DevJWTSecret = "promptz-dev-secret"

// DefaultEventRetention bounds JetStream streams outside production.
const DefaultEventRetention = 7 * 24 * time.Hour

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.JWTSecret == "" && cfg.Environment != EnvProduction {
		cfg.JWTSecret = DevJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:             "8080",
		Environment:      EnvDevelopment,
		LogLevel:         "info",
		StoreURL:         "memory://",
		DBSchema:         "promptz",
		BusURLs:          []string{"log://"},
		EventSource:      "promptz.content",
		PublishTimeout:   5 * time.Second,
		EventRetention:   DefaultEventRetention,
		CounterRateLimit: 60,
		MaxBodyBytes:     1 << 20,
		ShutdownTimeout:  10 * time.Second,
	}
}

// ServerConfig represents the configuration of the promptz service. Every
// field can be set from the environment variable in its env tag.
type ServerConfig struct {
	Port        string `yaml:"port" env:"PORT" env-description:"HTTP listen port (default 8080)"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-description:"development, production or testing"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-description:"debug, info, warn or error"`

	// Store
	StoreURL    string `yaml:"store_url" env:"STORE_URL" env-description:"memory://, postgres://..., sqlite://path or dynamodb://[host:port]"`
	DBSchema    string `yaml:"db_schema" env:"DB_SCHEMA" env-description:"Postgres schema (default promptz)"`
	TablePrefix string `yaml:"table_prefix" env:"TABLE_PREFIX" env-description:"Prefix prepended to every table name"`

	// Events
	BusURLs        []string      `yaml:"bus_urls" env:"BUS_URL" env-separator:"," env-description:"Comma separated sinks: log://, noop://, memory://, nats://..., http(s)://..., s3://bucket/prefix"`
	ArchiveURL     string        `yaml:"archive_url" env:"ARCHIVE_URL" env-description:"Durable replayable sink: nats://..., s3://bucket/prefix or memory://"`
	BusStructured  bool          `yaml:"bus_structured" env:"BUS_HTTP_STRUCTURED" env-description:"Send CloudEvents over HTTP in structured mode"`
	EventSource    string        `yaml:"event_source" env:"EVENT_SOURCE" env-description:"Source attribute of every event"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT" env-description:"Upper bound for one publish"`
	EventRetention time.Duration `yaml:"event_retention" env:"EVENT_RETENTION" env-description:"JetStream max age outside production when the nats url sets no retention (default 168h)"`

	// AWS
	AWSRegion          string `yaml:"aws_region" env:"AWS_REGION" env-description:"AWS region for DynamoDB and S3"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id" env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`

	// HTTP
	JWTSecret        string        `yaml:"jwt_secret" env:"JWT_SECRET" env-description:"HS256 secret for bearer tokens (required in production)"`
	CounterRateLimit int           `yaml:"counter_rate_limit" env:"COUNTER_RATE_LIMIT" env-description:"Copy and download requests per minute per IP, 0 disables"`
	AllowedOrigins   []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-description:"CORS origins"`
	TrustProxy       bool          `yaml:"trust_proxy" env:"TRUST_PROXY" env-description:"Take client IPs from X-Forwarded-For"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		return fmt.Errorf("environment must be one of development, production, testing; got %q", c.Environment)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	if _, err := ParseStoreURL(c.StoreURL); err != nil {
		return err
	}
	for _, raw := range c.BusURLs {
		if _, err := ParseSinkURL(raw); err != nil {
			return err
		}
	}
	if c.ArchiveURL != "" {
		sink, err := ParseSinkURL(c.ArchiveURL)
		if err != nil {
			return err
		}
		if !sink.Replayable() {
			return fmt.Errorf("archive_url %q is not a replayable sink", c.ArchiveURL)
		}
	}

	if c.EventSource == "" {
		return errors.New("event_source is required")
	}
	if c.PublishTimeout <= 0 {
		return errors.New("publish_timeout must be positive")
	}
	if c.EventRetention < 0 {
		return errors.New("event_retention must not be negative")
	}
	if c.CounterRateLimit < 0 {
		return errors.New("counter_rate_limit must not be negative")
	}
	if c.Environment == EnvProduction && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return errors.New("jwt_secret is required in production")
	}

	return nil
}

// StreamRetention is the max age of a JetStream stream. A retention in the
// sink url wins; otherwise production keeps events forever and every other
// environment keeps them for EventRetention.
func (c *ServerConfig) StreamRetention(sink SinkSpec) time.Duration {
	if sink.HasRetention {
		return sink.Retention
	}
	if c.Environment == EnvProduction {
		return 0
	}
	return c.EventRetention
}

// Level returns the parsed log level.
func (c *ServerConfig) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// Describe lists the environment variables understood by Load(WithEnv()).
func Describe() (string, error) {
	var cfg ServerConfig
	header := "promptz environment variables:"
	return cleanenv.GetDescription(&cfg, &header)
}
