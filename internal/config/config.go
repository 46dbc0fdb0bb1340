// Package config provides configuration for the negotiator client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the negotiator configuration.
type Config struct {
	// Remote service endpoints
	StreamURL string `env:"NEGOTIATOR_STREAM_URL" envDefault:"ws://localhost:8000/ws/negotiate"`
	APIURL    string `env:"NEGOTIATOR_API_URL"    envDefault:"http://localhost:8000"`

	// Replay settings
	ReplayDelayMS      int `env:"NEGOTIATOR_REPLAY_DELAY_MS"       envDefault:"800"`
	ReplayBadgeGraceMS int `env:"NEGOTIATOR_REPLAY_BADGE_GRACE_MS" envDefault:"3000"`

	// ManualControl asks the service to yield moves to the operator.
	ManualControl bool `env:"NEGOTIATOR_MANUAL_CONTROL" envDefault:"false"`

	// WebSocket settings
	PingIntervalMS int   `env:"NEGOTIATOR_WS_PING_INTERVAL_MS"  envDefault:"30000"`
	WriteTimeoutMS int   `env:"NEGOTIATOR_WS_WRITE_TIMEOUT_MS"  envDefault:"10000"`
	ReadTimeoutMS  int   `env:"NEGOTIATOR_WS_READ_TIMEOUT_MS"   envDefault:"0"`
	MaxMessageSize int64 `env:"NEGOTIATOR_WS_MAX_MESSAGE_SIZE"  envDefault:"65536"`

	// Session history settings
	HTTPTimeoutMS int `env:"NEGOTIATOR_HTTP_TIMEOUT_MS" envDefault:"30000"`

	// Logging
	LogLevel string `env:"NEGOTIATOR_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"NEGOTIATOR_LOG_FILE"`

	// Metrics export, disabled when empty
	OTelEndpoint string `env:"NEGOTIATOR_OTEL_ENDPOINT"`
	OTelInsecure bool   `env:"NEGOTIATOR_OTEL_INSECURE" envDefault:"false"`

	// Local development server. An empty DevDB keeps history in memory and an
	// empty DevPolicy uses the built-in move policy.
	DevPort   int    `env:"NEGOTIATOR_DEV_PORT" envDefault:"8000"`
	DevDB     string `env:"NEGOTIATOR_DEV_DB"`
	DevPolicy string `env:"NEGOTIATOR_DEV_POLICY"`
}

// Load reads an optional .env file and then the environment. Variables already
// set in the environment win over the file. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks endpoint URLs and numeric bounds.
func (c *Config) Validate() error {
	stream, err := url.Parse(c.StreamURL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	if stream.Scheme != "ws" && stream.Scheme != "wss" {
		return fmt.Errorf("invalid stream url %q: scheme must be ws or wss", c.StreamURL)
	}
	api, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if api.Scheme != "http" && api.Scheme != "https" {
		return fmt.Errorf("invalid api url %q: scheme must be http or https", c.APIURL)
	}
	if c.ReplayDelayMS <= 0 {
		return fmt.Errorf("replay delay must be positive, got %dms", c.ReplayDelayMS)
	}
	if c.ReplayBadgeGraceMS < 0 || c.PingIntervalMS < 0 || c.WriteTimeoutMS < 0 || c.ReadTimeoutMS < 0 || c.HTTPTimeoutMS < 0 {
		return errors.New("durations must not be negative")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive, got %d", c.MaxMessageSize)
	}
	if c.DevPort <= 0 || c.DevPort > 65535 {
		return fmt.Errorf("invalid dev port %d", c.DevPort)
	}
	return nil
}

func (c *Config) ReplayDelay() time.Duration {
	return ms(c.ReplayDelayMS)
}

func (c *Config) ReplayBadgeGrace() time.Duration {
	return ms(c.ReplayBadgeGraceMS)
}

func (c *Config) PingInterval() time.Duration {
	return ms(c.PingIntervalMS)
}

func (c *Config) WriteTimeout() time.Duration {
	return ms(c.WriteTimeoutMS)
}

// ReadTimeout is zero when reads never time out.
func (c *Config) ReadTimeout() time.Duration {
	return ms(c.ReadTimeoutMS)
}

func (c *Config) HTTPTimeout() time.Duration {
	return ms(c.HTTPTimeoutMS)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
