package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// ActivityLogName is the file the consumer appends to inside its
// directory.
const ActivityLogName = "activity.log"

const maxBackoff = 30 * time.Second

// Consumer reads envelopes from a RabbitMQ queue (Run) or a Kafka
// consumer group (RunKafka) and appends one line
// per event to <Dir>/activity.log.
type Consumer struct {
    URL    string
    Queue  string
    Dir    string
    Logger *slog.Logger

    mu sync.Mutex // serializes file appends
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff (capped at 30s) whenever the broker is unreachable or the
// delivery channel closes.  Messages that cannot be handled are
// rejected without requeue to avoid tight redelivery loops.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Logger.Warn("activity-consumer: failed to dial broker", "err", err, "retry_in", backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            backoff = min(backoff*2, maxBackoff)
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Logger.Warn("activity-consumer: consume loop ended; reconnecting", "err", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Logger.Warn("activity-consumer: set QoS failed", "err", err)
    }
    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                c.Logger.Error("activity-consumer: handle message failed", "err", err, "message_id", d.MessageId)
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and appends its activity line.
func (c *Consumer) Handle(body []byte) error {
    var env Envelope
    if err := json.Unmarshal(body, &env); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    line, err := FormatLine(env)
    if err != nil {
        return err
    }

    c.mu.Lock()
    defer c.mu.Unlock()
    if err := os.MkdirAll(c.Dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.Dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.Dir, ActivityLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders env as a single human-friendly log line ending in
// a newline.
func FormatLine(env Envelope) (string, error) {
    at := env.OccurredAt.UTC().Format(time.RFC3339)
    switch env.Type {
    case RegistrationCreated, RegistrationReactivated, RegistrationCancelled:
        var ev RegistrationEvent
        if err := json.Unmarshal(env.Data, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", env.Type, err)
        }
        return fmt.Sprintf("[%s] %s | registration_id=%d | event_id=%d | event=%q | user_id=%d | tier=%s | remaining_general=%d | remaining_vip=%d\n",
            at, env.Type, ev.RegistrationID, ev.EventID, ev.EventName, ev.UserID, ev.Tier, ev.RemainingGeneral, ev.RemainingVIP), nil
    case VoteCast, VoteRemoved:
        var ev VoteEvent
        if err := json.Unmarshal(env.Data, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", env.Type, err)
        }
        kind := ev.Kind
        if kind == "" {
            kind = "-"
        }
        return fmt.Sprintf("[%s] %s | vote_id=%d | song_id=%d | event_id=%d | kind=%s | anonymous=%t | up=%d | down=%d\n",
            at, env.Type, ev.VoteID, ev.SongID, ev.EventID, kind, ev.Anonymous, ev.UpCount, ev.DownCount), nil
    case SongCreated:
        var ev SongEvent
        if err := json.Unmarshal(env.Data, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", env.Type, err)
        }
        return fmt.Sprintf("[%s] %s | song_id=%d | event_id=%d | title=%q | artist=%q | external_id=%s\n",
            at, env.Type, ev.SongID, ev.EventID, ev.Title, ev.Artist, ev.ExternalID), nil
    }
    return "", fmt.Errorf("unknown event type %q", env.Type)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
