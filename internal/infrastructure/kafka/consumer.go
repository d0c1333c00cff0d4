package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one decoded envelope. Returning an error asks for a retry.
type MessageHandler func(ctx context.Context, env Envelope) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
)

// Consumer reads the topic in a consumer group and commits each message
// after it was handled or its retries were exhausted.
type Consumer struct {
	reader      messageReader
	logger      *zap.Logger
	maxAttempts int
	retryDelay  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // manual commit
	})
	return newConsumer(reader, logger, defaultMaxAttempts, defaultRetryDelay)
}

func newConsumer(r messageReader, logger *zap.Logger, attempts int, delay time.Duration) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: r, logger: logger.Named("kafka"), maxAttempts: attempts, retryDelay: delay}
}

// Consume blocks until ctx is cancelled
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			if err := wait(ctx, c.retryDelay); err != nil {
				return err
			}
			continue
		}

		log := c.logger.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
		env, err := DecodeEnvelope(msg.Value)
		if err != nil {
			log.Warn("skipping undecodable message", zap.Error(err))
		} else if err := c.handle(ctx, handler, env, log); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("message dropped after retries",
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, env Envelope, log *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = handler(ctx, env); err == nil {
			return nil
		}
		log.Warn("handler failed",
			zap.String("event_id", env.EventID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < c.maxAttempts {
			if werr := wait(ctx, c.retryDelay); werr != nil {
				return werr
			}
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
