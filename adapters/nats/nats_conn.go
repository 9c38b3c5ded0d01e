package nats

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
)

// Concrete NATS connection-backed Client and dialer.

type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ConnTimeout   time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
	FlushTimeout  time.Duration
}

// ConfigFromEnv reads NATS_URL, defaulting to nats.DefaultURL.
func ConfigFromEnv() Config {
	cfg := Config{URL: os.Getenv("NATS_URL"), Name: "scg-log-bus"}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	return cfg
}

type natsClient struct {
	nc      *nats.Conn
	timeout time.Duration
}

func (c natsClient) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); ok {
		return c.nc.FlushWithContext(ctx)
	}

	return c.nc.FlushTimeout(c.timeout)
}

// NewDialer returns a Dialer that opens a real NATS connection on each Dial.
// The client library reconnects on its own; publishes during a reconnect are
// buffered by the client.
func NewDialer(cfg Config, logger *slog.Logger) (*Dialer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats: url required: %w", berr.ErrConnectFailed)
	}

	if logger == nil {
		logger = slog.Default()
	}

	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
	}

	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	return &Dialer{
		prefix: cfg.SubjectPrefix,
		connect: func(context.Context) (Client, func() error, error) {
			nc, err := nats.Connect(cfg.URL, opts...)
			if err != nil {
				return nil, nil, err
			}

			closeFn := func() error {
				if nc.IsClosed() {
					return nil
				}

				err := nc.Drain()
				nc.Close()

				return err
			}

			return natsClient{nc: nc, timeout: cfg.FlushTimeout}, closeFn, nil
		},
	}, nil
}
