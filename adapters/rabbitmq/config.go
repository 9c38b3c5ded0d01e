package rabbitmq

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
)

const (
	defaultHost     = "localhost"
	defaultPort     = "5672"
	defaultUser     = "guest"
	defaultPassword = "guest"
	defaultVhost    = "/"
)

type Config struct {
	// URL is the amqp:// or amqps:// broker URI.
	URL string

	// ConnectionName is reported to the broker as the connection_name client property.
	ConnectionName string

	ConnTimeout time.Duration
	Heartbeat   time.Duration

	// MinBackoff and MaxBackoff bound the redial delay after a connection loss.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// Confirm puts the channel in confirm mode and waits for the broker ack on every publish.
	Confirm bool
}

// ConfigFromEnv builds a Config from RABBITMQ_URL, or from RABBITMQ_HOST,
// RABBITMQ_PORT, RABBITMQ_USER, RABBITMQ_PASSWORD and RABBITMQ_VHOST when no
// URL is set. The host defaults to localhost with guest credentials.
func ConfigFromEnv() Config {
	cfg := Config{URL: os.Getenv("RABBITMQ_URL")}
	if cfg.URL != "" {
		return cfg.withDefaults()
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(env("RABBITMQ_USER", defaultUser), env("RABBITMQ_PASSWORD", defaultPassword)),
		Host:   net.JoinHostPort(env("RABBITMQ_HOST", defaultHost), env("RABBITMQ_PORT", defaultPort)),
		Path:   "/",
	}

	if vhost := env("RABBITMQ_VHOST", defaultVhost); vhost != defaultVhost {
		u.Path = "/" + vhost
		u.RawPath = "/" + url.PathEscape(vhost)
	}

	cfg.URL = u.String()

	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ConnTimeout <= 0 {
		c.ConnTimeout = 5 * time.Second
	}

	if c.Heartbeat <= 0 {
		c.Heartbeat = 10 * time.Second
	}

	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}

	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = 30 * time.Second
		if c.MaxBackoff < c.MinBackoff {
			c.MaxBackoff = c.MinBackoff
		}
	}

	if c.ConnectionName == "" {
		c.ConnectionName = "scg-log-bus"
	}

	return c
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("rabbitmq: url required: %w", berr.ErrConnectFailed)
	}

	if _, err := amqp.ParseURI(c.URL); err != nil {
		return fmt.Errorf("rabbitmq: parse url: %w", joinConnect(err))
	}

	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
