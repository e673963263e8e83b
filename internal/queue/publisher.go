package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "strings"
    "sync"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/IstFranco/utn-events/internal/config"
)

// Publisher delivers envelopes to a broker.
type Publisher interface {
    Publish(ctx context.Context, env Envelope) error
    Close() error
}

// NewPublisher builds the publisher selected by cfg.Backend.  Unknown
// backends are rejected so a typo does not silently drop events.
func NewPublisher(cfg config.BrokerConfig, logger *slog.Logger) (Publisher, error) {
    switch strings.ToLower(cfg.Backend) {
    case "", "none":
        return Nop{}, nil
    case "rabbitmq", "amqp":
        return NewRabbitPublisher(cfg.RabbitURL, cfg.Queue, logger), nil
    case "kafka":
        return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
    }
    return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
}

// Nop discards every envelope.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }

// RabbitPublisher publishes persistent JSON messages to a durable queue
// through the default exchange.  The connection is dialled on first use
// and re-dialled after the broker drops it.
type RabbitPublisher struct {
    url    string
    queue  string
    logger *slog.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewRabbitPublisher returns a publisher for queue on the broker at url.
func NewRabbitPublisher(url, queue string, logger *slog.Logger) *RabbitPublisher {
    return &RabbitPublisher{url: url, queue: queue, logger: logger}
}

// channel returns an open channel, dialling when needed.  mu must be held.
func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    if p.conn == nil || p.conn.IsClosed() {
        conn, err := amqp.Dial(p.url)
        if err != nil {
            return nil, fmt.Errorf("dial broker: %w", err)
        }
        p.conn = conn
    }
    ch, err := p.conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("channel open: %w", err)
    }
    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    p.ch = ch
    return ch, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, env Envelope) error {
    body, err := json.Marshal(env)
    if err != nil {
        return fmt.Errorf("marshal envelope: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    ch, err := p.channel()
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    env.ID,
        Type:         string(env.Type),
        Timestamp:    env.OccurredAt,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
        // Force a fresh channel on the next call.
        _ = ch.Close()
        p.ch = nil
        return fmt.Errorf("publish %s: %w", env.Type, err)
    }
    p.logger.Debug("event published", "type", env.Type, "id", env.ID, "queue", p.queue)
    return nil
}

func (p *RabbitPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        err := p.conn.Close()
        p.conn = nil
        return err
    }
    return nil
}
