package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
)

const (
	defaultExchange   = "harvester"
	defaultRoutingKey = "run.finished"
	exchangeKind      = "topic"
	contentTypeJSON   = "application/json"
	reporterAMQP      = "amqp"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPConfig configures summary publishing.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPReporter publishes JSON run summaries to a topic exchange.
type AMQPReporter struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         Channel
	exchange   string
	routingKey string
	logger     *zerolog.Logger
	now        func() time.Time
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(cfg AMQPConfig, logger *zerolog.Logger) (*AMQPReporter, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	r := NewAMQPReporter(ch, cfg.Exchange, cfg.RoutingKey, logger)
	r.conn = conn

	if err := ch.ExchangeDeclare(r.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = r.Close()

		return nil, fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}

	return r, nil
}

// NewAMQPReporter wraps an open channel.
func NewAMQPReporter(ch Channel, exchange, routingKey string, logger *zerolog.Logger) *AMQPReporter {
	if exchange == "" {
		exchange = defaultExchange
	}

	if routingKey == "" {
		routingKey = defaultRoutingKey
	}

	return &AMQPReporter{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
		now:        time.Now,
	}
}

// Report publishes the summary as a persistent JSON message.
func (r *AMQPReporter) Report(ctx context.Context, s domain.RunSummary) error {
	body, err := json.Marshal(FromDomain(s))
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    s.RunID,
		Timestamp:    r.now().UTC(),
		Type:         defaultRoutingKey,
		Body:         body,
	}

	r.mu.Lock()
	err = r.ch.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, msg)
	r.mu.Unlock()

	if err != nil {
		observability.ReportsPublished.WithLabelValues(reporterAMQP, "error").Inc()

		return fmt.Errorf("publish run summary %s: %w", s.RunID, err)
	}

	observability.ReportsPublished.WithLabelValues(reporterAMQP, "ok").Inc()

	r.logger.Debug().
		Str("run_id", s.RunID).
		Str("exchange", r.exchange).
		Str("routing_key", r.routingKey).
		Msg("run summary published")

	return nil
}

// Close closes the channel and the connection.
func (r *AMQPReporter) Close() error {
	err := r.ch.Close()

	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}

	return err
}
