// Package queue hands stored capture keys from the stager to workers over NATS.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Group is the queue group workers join so each key is processed once.
const Group = "workers"

// Queue carries stored capture keys over one NATS subject.
type Queue struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Options tunes the NATS connection. Zero values take defaults.
type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Logger               *slog.Logger
}

// New connects with default options.
func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

// NewWithOptions connects to url for subject.
func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("nats subject is required")
	}
	name := options.Name
	if name == "" {
		name = "creek-ocr"
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, logger: logger}, nil
}

// Close closes the connection.
func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishStoredKey announces an object store key holding a raw capture.
func (q *Queue) PublishStoredKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.conn.Publish(q.subject, []byte(key)); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// SubscribeStoredKeys runs handler for each published key until ctx is done,
// then drains the subscription. Handler errors are logged, not redelivered.
func (q *Queue) SubscribeStoredKeys(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, Group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		key := string(msg.Data)
		if err := handler(handlerCtx, key); err != nil {
			q.logger.Error("stored key handler failed", "key", key, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
