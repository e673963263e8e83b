package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "time"

    "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes envelopes to a topic keyed by Envelope.Key, so
// all events of one registration event or one song land on the same
// partition and keep their order.
type KafkaPublisher struct {
    writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
    return &KafkaPublisher{
        writer: &kafka.Writer{
            Addr:                   kafka.TCP(brokers...),
            Topic:                  topic,
            Balancer:               &kafka.Hash{},
            AllowAutoTopicCreation: true,
        },
    }
}

func (k *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
    value, err := json.Marshal(env)
    if err != nil {
        return fmt.Errorf("failed to marshal message: %w", err)
    }
    msg := kafka.Message{
        Key:   []byte(env.Key),
        Value: value,
        Headers: []kafka.Header{
            {Key: "type", Value: []byte(env.Type)},
            {Key: "id", Value: []byte(env.ID)},
        },
    }
    if err := k.writer.WriteMessages(ctx, msg); err != nil {
        return fmt.Errorf("failed to write message: %w", err)
    }
    return nil
}

func (k *KafkaPublisher) Close() error {
    if err := k.writer.Close(); err != nil {
        return fmt.Errorf("failed to close writer: %w", err)
    }
    return nil
}

// RunKafka consumes topic as member of groupID until ctx is cancelled.
// Offsets are committed after each message is handled; a message that
// cannot be handled is logged and committed so it does not block the
// partition.
func (c *Consumer) RunKafka(ctx context.Context, brokers []string, topic, groupID string) error {
    r := kafka.NewReader(kafka.ReaderConfig{
        Brokers:  brokers,
        Topic:    topic,
        GroupID:  groupID,
        MinBytes: 1,
        MaxBytes: 10e6,
        MaxWait:  time.Second,
    })
    defer r.Close()

    backoff := time.Second
    for {
        m, err := r.FetchMessage(ctx)
        if err != nil {
            if ctx.Err() != nil {
                return ctx.Err()
            }
            if errors.Is(err, io.EOF) {
                return err
            }
            c.Logger.Warn("activity-consumer: kafka fetch failed", "err", err, "retry_in", backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            backoff = min(backoff*2, maxBackoff)
            continue
        }
        backoff = time.Second

        if err := c.Handle(m.Value); err != nil {
            c.Logger.Error("activity-consumer: handle message failed", "err", err,
                "partition", m.Partition, "offset", m.Offset)
        }
        if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
            c.Logger.Warn("activity-consumer: commit failed", "err", err, "offset", m.Offset)
        }
    }
}
