package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"billing-service/internal/services"
)

// StreamName is the JetStream stream holding every billing event
const StreamName = "BILLING_EVENTS"

// StreamSubjects are the subjects captured by the stream
var StreamSubjects = []string{"tenant.>", "billing.>", "settings.>"}

const maxPublishAttempts = 3

type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Client wraps the NATS connection and publishes domain events
type Client struct {
	conn    *nats.Conn
	js      publisher
	logger  *logrus.Entry
	backoff func(attempt int) time.Duration
}

// Config holds NATS connection configuration
type Config struct {
	URL  string
	Name string
}

// NewClient connects to NATS and makes sure the event stream exists
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	entry := logger.WithField("component", "nats")
	entry.WithField("url", cfg.URL).Info("Connecting to NATS")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			entry.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			entry.WithError(err).Error("NATS error")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			entry.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// LimitsPolicy lets every downstream consumer read the same events
	_, err = js.AddStream(&nats.StreamConfig{
		Name:        StreamName,
		Description: "Billing, tenant and settings events",
		Subjects:    StreamSubjects,
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		entry.WithError(err).Warn("Could not create stream, it may already exist")
	}

	entry.Info("Connected to NATS")
	return &Client{conn: conn, js: js, logger: entry, backoff: exponentialBackoff}, nil
}

// Publish sends the event to JetStream, retrying with exponential backoff
func (c *Client) Publish(ctx context.Context, subject string, event *services.Event) error {
	if c == nil || c.js == nil {
		return fmt.Errorf("NATS client not initialized")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var ack *nats.PubAck
	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		ack, err = c.js.Publish(subject, data, nats.Context(ctx))
		if err == nil {
			break
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"subject": subject,
			"attempt": attempt,
		}).Warn("Failed to publish event")

		if attempt < maxPublishAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while retrying publish: %w", ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish event after %d attempts: %w", maxPublishAttempts, err)
	}

	c.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
		"sequence": ack.Sequence,
	}).Debug("Published event")
	return nil
}

// IsConnected reports whether the connection is up
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Close drains and closes the connection
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// 1s, 2s, 4s
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}
