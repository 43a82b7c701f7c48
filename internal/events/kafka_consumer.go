package events

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads domain events from a topic with a consumer group.
// Offsets are committed only after an event is queued or found to be
// permanently unprocessable; transient failures are retried in place.
type KafkaConsumer struct {
	reader     MessageReader
	handle     Handler
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewKafkaReader builds the group reader for brokers/topic/groupID.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})
}

func NewKafkaConsumer(reader MessageReader, handle Handler, retryDelay time.Duration, logger *zap.Logger) *KafkaConsumer {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &KafkaConsumer{reader: reader, handle: handle, retryDelay: retryDelay, logger: logger}
}

// Run consumes until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka consumer stopping")
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}
		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// process handles one message and commits it. It returns only when the
// message was committed or ctx was cancelled.
func (c *KafkaConsumer) process(ctx context.Context, msg kafka.Message) error {
	log := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	for {
		ev, err := Decode(msg.Value)
		if err == nil {
			_, err = c.handle(ctx, ev)
		}
		if err == nil {
			break
		}
		if IsPermanent(err) {
			log.Warn("skipping event that can never be processed", zap.Error(err))
			break
		}

		log.Warn("event processing failed, retrying", zap.Error(err), zap.Duration("delay", c.retryDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "commit message")
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
