package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes enveloped events. Messages with the same key land on
// the same partition.
type Producer struct {
	writer messageWriter
	logger *zap.Logger
	now    func() time.Time
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(writer, logger)
}

func newProducer(w messageWriter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		writer: w,
		logger: logger.Named("kafka"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish wraps payload in an Envelope and writes it synchronously
func (p *Producer) Publish(ctx context.Context, eventType, key string, payload any) error {
	env, err := NewEnvelope(eventType, key, payload, p.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
	if err != nil {
		return err
	}
	p.logger.Debug("event published",
		zap.String("event_id", env.EventID),
		zap.String("event_type", eventType),
		zap.String("key", key),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
