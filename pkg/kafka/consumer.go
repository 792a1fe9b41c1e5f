package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer reads ingest records in batches. Offsets are committed only after
// the caller has processed a batch, so a failed run re-reads it.
type Consumer struct {
	reader *kafka.Reader
	logger ectologger.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0, // synchronous commits
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}
}

// FetchBatch reads up to max messages, returning early once wait elapses
// without a new message. An empty batch means the topic is drained.
func (c *Consumer) FetchBatch(ctx context.Context, max int, wait time.Duration) ([]IncomingMessage, error) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.FetchBatch")
	defer span.End()

	batch := make([]IncomingMessage, 0, max)
	for len(batch) < max {
		fetchCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				return batch, nil
			case errors.Is(err, io.EOF):
				return batch, nil
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			return batch, err
		}
		batch = append(batch, newIncomingMessage(msg))
	}

	return batch, nil
}

// Commit marks messages as processed.
func (c *Consumer) Commit(ctx context.Context, msgs []IncomingMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	raw := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		raw[i] = m.raw
	}
	if err := c.reader.CommitMessages(ctx, raw...); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("count", len(msgs)).Error("Failed to commit messages")
		return err
	}
	return nil
}

// Close closes the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
