package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers      []string      `env:"BROKERS" envSeparator:","`
	Topic        string        `env:"TOPIC" envDefault:"aboba.domain-events"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	BatchTimeout time.Duration `env:"BATCH_TIMEOUT" envDefault:"10ms"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds an async writer keyed by event id, so events of one
// entity land on one partition. WriteMessages returns once the batch is
// buffered; delivery failures surface through the completion log only.
func NewKafkaWriter(cfg KafkaConfig, logger *slog.Logger) *kafka.Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion:   completionLogger(logger, cfg.Topic),
	}
}

func completionLogger(logger *slog.Logger, topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		names := make([]string, 0, len(msgs))
		for _, m := range msgs {
			names = append(names, string(m.Key))
		}
		logger.Error("kafka delivery failed",
			slog.String("topic", topic),
			slog.Any("events", names),
			slog.Any("error", err),
		)
	}
}

// KafkaSink forwards events to Kafka. Subscribe it with Wildcard.
func KafkaSink(w MessageWriter) Handler {
	return func(ctx context.Context, evt Event) error {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("events: encode %s: %w", evt.Name, err)
		}
		msg := kafka.Message{
			Key:   []byte(evt.Name + ":" + evt.ID),
			Value: body,
			Time:  evt.At,
			Headers: []kafka.Header{
				{Key: "event-name", Value: []byte(evt.Name)},
			},
		}
		if err := w.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("events: kafka write %s: %w", evt.Name, err)
		}
		return nil
	}
}
