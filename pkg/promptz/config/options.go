package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides. Unset variables keep the
// value configured so far.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a yaml, json, toml or .env file. Environment variables still
// win over the file.
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithStoreURL selects the entity store
func WithStoreURL(raw string) Option {
	return func(c *ServerConfig) error {
		if _, err := ParseStoreURL(raw); err != nil {
			return err
		}
		c.StoreURL = raw
		return nil
	}
}

// WithBusURLs replaces the list of event sinks
func WithBusURLs(raw ...string) Option {
	return func(c *ServerConfig) error {
		urls := make([]string, 0, len(raw))
		for _, u := range raw {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			if _, err := ParseSinkURL(u); err != nil {
				return err
			}
			urls = append(urls, u)
		}
		c.BusURLs = urls
		return nil
	}
}

// WithArchiveURL selects the durable, replayable sink
func WithArchiveURL(raw string) Option {
	return func(c *ServerConfig) error {
		c.ArchiveURL = raw
		return nil
	}
}

// WithJWTSecret sets the token signing secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithTablePrefix sets the prefix of every table name
func WithTablePrefix(prefix string) Option {
	return func(c *ServerConfig) error {
		c.TablePrefix = prefix
		return nil
	}
}

// WithCounterRateLimit sets copy and download requests per minute per IP
func WithCounterRateLimit(perMinute int) Option {
	return func(c *ServerConfig) error {
		if perMinute < 0 {
			return fmt.Errorf("counter rate limit cannot be negative")
		}
		c.CounterRateLimit = perMinute
		return nil
	}
}

// WithEventRetention sets the JetStream max age used outside production
func WithEventRetention(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.EventRetention = d
		return nil
	}
}
