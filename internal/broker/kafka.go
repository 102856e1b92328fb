package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts     = 3
	defaultHandlerAttempts = 3
	defaultHandlerBackoff  = 500 * time.Millisecond
)

type Producer struct {
	writer *kafka.Writer
}

// ProducerOption customizes the underlying kafka writer
type ProducerOption func(*kafka.Writer)

// WithMaxAttempts sets how many times a write is tried before failing
func WithMaxAttempts(n int) ProducerOption {
	return func(w *kafka.Writer) {
		if n > 0 {
			w.MaxAttempts = n
		}
	}
}

// WithWriteTimeout bounds a single write
func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(w *kafka.Writer) {
		if d > 0 {
			w.WriteTimeout = d
		}
	}
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string, opts ...ProducerOption) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  defaultMaxAttempts,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	for _, opt := range opts {
		opt(writer)
	}

	return &Producer{writer: writer}
}

// PublishEvent publishes an event to Kafka
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("type", fmt.Sprintf("%T", event)),
	)
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader   *kafka.Reader
	attempts int
	backoff  time.Duration
}

// ConsumerOption customizes a Consumer
type ConsumerOption func(*Consumer)

// WithHandlerRetries sets how many times a failing message is handled, and
// the pause between tries, before it is skipped
func WithHandlerRetries(attempts int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	c := &Consumer{
		reader:   reader,
		attempts: defaultHandlerAttempts,
		backoff:  defaultHandlerBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages one at a time and commits each after the
// handler returns. A message whose handler keeps failing is logged and
// committed so it does not block the partition.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	logger := util.GetLogger().With(zap.String("topic", c.reader.Config().Topic))
	logger.Info("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Consumer context cancelled, stopping")
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("Error fetching message", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			if err := handleWithRetry(ctx, handler, msg, c.attempts, c.backoff); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				util.EventsConsumedTotal.WithLabelValues("skipped").Inc()
				logger.Error("Skipping message after failed attempts",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Int("attempts", c.attempts),
					zap.Error(err),
				)
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Error("Error committing message", zap.Error(err))
			}
		}
	}
}

// handleWithRetry runs handler up to attempts times and returns the last error
func handleWithRetry(ctx context.Context, handler MessageHandler, msg kafka.Message, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		if err = handler(ctx, msg); err == nil {
			return nil
		}
		util.GetLogger().Warn("Error handling message",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
	}
	return err
}
