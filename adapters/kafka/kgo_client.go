package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
)

// Concrete franz-go based dialer and writer wrapper.

type Config struct {
	Brokers     []string
	ClientID    string
	TopicPrefix string
	TLS         *tls.Config

	// Acks is "all" (default), "leader" or "none". Anything but "all"
	// disables idempotent writes.
	Acks string

	// Compression is "none", "gzip", "snappy", "lz4" or "zstd".
	Compression string
}

// ConfigFromEnv reads a comma separated broker list from KAFKA_BROKERS,
// defaulting to localhost:9092.
func ConfigFromEnv() Config {
	raw := os.Getenv("KAFKA_BROKERS")
	if raw == "" {
		raw = "localhost:9092"
	}

	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return Config{Brokers: brokers, ClientID: "scg-log-bus"}
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

// NewDialer returns a Dialer that builds a franz-go client on each Dial and
// pings the cluster before handing it out.
func NewDialer(cfg Config) (*Dialer, error) {
	opts, err := clientOpts(cfg)
	if err != nil {
		return nil, err
	}

	return &Dialer{
		prefix: cfg.TopicPrefix,
		connect: func(ctx context.Context) (Writer, func(), error) {
			cl, err := kgo.NewClient(opts...)
			if err != nil {
				return nil, nil, fmt.Errorf("kafka client init: %w", err)
			}

			if err := cl.Ping(ctx); err != nil {
				cl.Close()
				return nil, nil, fmt.Errorf("kafka ping: %w", err)
			}

			return kgoWriter{cl: cl}, cl.Close, nil
		},
	}, nil
}

func clientOpts(cfg Config) ([]kgo.Opt, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers required: %w", berr.ErrConnectFailed)
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
	}

	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	switch strings.ToLower(cfg.Acks) {
	case "", "all":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case "leader":
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	case "none":
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	default:
		return nil, fmt.Errorf("kafka: unknown acks %q: %w", cfg.Acks, berr.ErrConnectFailed)
	}

	switch strings.ToLower(cfg.Compression) {
	case "":
	case "none":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.NoCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	default:
		return nil, fmt.Errorf("kafka: unknown compression %q: %w", cfg.Compression, berr.ErrConnectFailed)
	}

	return opts, nil
}
