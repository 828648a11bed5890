package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSClient wraps a core NATS connection for publishing events and for
// queue-group subscriptions. JetStream is deliberately not used: event
// durability lives in the notifications table, NATS only fans out.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSClient connects to the given NATS URL with sane reconnect settings.
func NewNATSClient(url string, logger *slog.Logger) (*NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.Name("terminal-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSClient{conn: conn, logger: logger.With("component", "nats")}, nil
}

// Publish sends data on the given subject.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish to %s: %w", subject, err)
	}
	c.logger.DebugContext(ctx, "published NATS message", "subject", subject, "bytes", len(data))
	return nil
}

// SubscribeToSubjectWithQueue subscribes handler to subject in the given
// queue group and blocks until ctx is cancelled. Designed to run in its own
// goroutine.
func (c *NATSClient) SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) error {
	sub, err := c.conn.QueueSubscribe(subject, queueGroup, handler)
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s/%s: %w", subject, queueGroup, err)
	}
	c.logger.InfoContext(ctx, "NATS queue subscription active", "subject", subject, "queue_group", queueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		c.logger.Warn("failed to drain NATS subscription", "subject", subject, "error", err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("failed to drain NATS connection", "error", err)
	}
	c.conn.Close()
}
