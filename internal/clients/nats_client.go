package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/metrics"
)

// NATSOptions configure NewNATSClient
type NATSOptions struct {
	URL             string
	Timeout         time.Duration
	ReconnectWait   time.Duration
	MaxReconnects   int
	EnableJetStream bool
	Stream          string
	SubjectPrefix   string
}

// publishFunc sends one message. Core NATS and JetStream differ only here.
type publishFunc func(subject string, data []byte) error

// NATSClient publishes settlements and fee withdrawals
type NATSClient struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	prefix  string
	publish publishFunc
}

// NewNATSClient connects and, with JetStream enabled, makes sure the stream
// covering the subject prefix exists.
func NewNATSClient(opts NATSOptions) (*NATSClient, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ReconnectWait == 0 {
		opts.ReconnectWait = 5 * time.Second
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = -1
	}

	conn, err := nats.Connect(opts.URL,
		nats.Timeout(opts.Timeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.Warnf("NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Infof("NATS reconnected to %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	c := &NATSClient{conn: conn, prefix: opts.SubjectPrefix}
	c.publish = conn.Publish

	if opts.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		c.js = js
		if err := c.ensureStream(opts.Stream); err != nil {
			conn.Close()
			return nil, err
		}
		c.publish = func(subject string, data []byte) error {
			_, err := js.Publish(subject, data)
			return err
		}
	}

	logrus.Infof("✅ NATS settlement publisher ready (jetstream=%v, prefix=%s)", opts.EnableJetStream, opts.SubjectPrefix)
	return c, nil
}

func (c *NATSClient) ensureStream(name string) error {
	if _, err := c.js.StreamInfo(name); err == nil {
		logrus.Infof("📋 Stream %s already exists", name)
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{c.prefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	logrus.Infof("✅ Stream %s created", name)
	return nil
}

// SettlementSubject is <prefix>.<source domain>.<route>.<settlement id>.
func SettlementSubject(prefix string, s *dispatcher.Settlement) string {
	return fmt.Sprintf("%s.%d.%s.%s", prefix, s.SourceDomain, s.Route, s.ID)
}

// WithdrawalSubject is <prefix>.withdrawals.<withdrawal id>.
func WithdrawalSubject(prefix string, w *dispatcher.FeeWithdrawal) string {
	return fmt.Sprintf("%s.withdrawals.%s", prefix, w.ID)
}

// Emit publishes a settlement.
func (c *NATSClient) Emit(_ context.Context, s *dispatcher.Settlement) error {
	return c.send(SettlementSubject(c.prefix, s), s)
}

// RecordWithdrawal publishes a fee withdrawal.
func (c *NATSClient) RecordWithdrawal(_ context.Context, w *dispatcher.FeeWithdrawal) error {
	return c.send(WithdrawalSubject(c.prefix, w), w)
}

func (c *NATSClient) send(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := c.publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	logrus.Debugf("📤 Published %s", subject)
	return nil
}

// Close closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Healthy reports whether the connection is up.
func (c *NATSClient) Healthy() bool {
	return c.conn != nil && c.conn.IsConnected()
}
