// Command activity-consumer drains the domain event queue into an
// append-only activity log.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/IstFranco/utn-events/internal/config"
	"github.com/IstFranco/utn-events/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	env := os.Getenv("APP_ENV")
	logger := config.NewLogger(env == "prod" || env == "production", os.Getenv("LOG_LEVEL"))

	broker := config.LoadBrokerConfig()
	dir := os.Getenv("ACTIVITY_LOG_DIR")
	if dir == "" {
		dir = "logs"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.Consumer{URL: broker.RabbitURL, Queue: broker.Queue, Dir: dir, Logger: logger}
	var err error
	switch broker.Backend {
	case "kafka":
		logger.Info("consuming", "backend", "kafka", "topic", broker.KafkaTopic, "group", broker.KafkaGroupID, "dir", dir)
		err = c.RunKafka(ctx, broker.KafkaBrokers, broker.KafkaTopic, broker.KafkaGroupID)
	case "rabbitmq", "amqp":
		logger.Info("consuming", "backend", "rabbitmq", "queue", broker.Queue, "dir", dir)
		err = c.Run(ctx)
	default:
		logger.Error("nothing to consume", "backend", broker.Backend)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
}
