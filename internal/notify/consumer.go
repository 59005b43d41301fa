package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/fault"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Receiver applies a decoded notification.
type Receiver interface {
	Receive(ctx context.Context, n payment.Notification) error
}

// ConsumerConfig configures a Kafka consumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader returns a group reader for cfg.
func NewReader(cfg ConsumerConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 1 << 20,
	})
}

// Consumer feeds notifications from a topic into a Receiver.
//
// A message is committed once it is applied or rejected as a client error.
// Internal failures are retried with backoff and block the partition.
type Consumer struct {
	reader   Reader
	receiver Receiver
	backoff  func() backoff.BackOff
}

// NewConsumer creates a Consumer.
func NewConsumer(reader Reader, receiver Receiver) *Consumer {
	return &Consumer{
		reader:   reader,
		receiver: receiver,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("notify")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
		lg.Debug("Committed notification",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	carrier := propagation.MapCarrier{}
	for _, h := range msg.Headers {
		carrier[h.Key] = string(h.Value)
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	lg := zctx.From(ctx).With(
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	n, err := Decode(msg.Value)
	if err != nil {
		lg.Warn("Dropping undecodable notification", zap.Error(err))
		return nil
	}
	if n.DeliveryID == "" {
		n.DeliveryID = deliveryID(msg)
	}

	op := func() error {
		err := c.receiver.Receive(ctx, n)
		if err != nil && fault.KindOf(err) != fault.Internal {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		lg.Warn("Retrying notification", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.backoff(), ctx), notify); err != nil {
		if fault.KindOf(err) == fault.Internal {
			return errors.Wrap(err, "apply notification")
		}
		lg.Warn("Rejected notification",
			zap.String("event", n.Event),
			zap.String("intent_ref", n.IntentRef),
			zap.Error(err),
		)
	}
	return nil
}

// deliveryID identifies a message for dedupe when the producer set none.
func deliveryID(msg kafka.Message) string {
	return "kafka:" + msg.Topic + ":" + strconv.Itoa(msg.Partition) + ":" + strconv.FormatInt(msg.Offset, 10)
}
