package notify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/xenking/kart-fulfillment/internal/domain/payment"
)

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer producing to topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher writes notifications to a topic, keyed by intent so that the
// notifications of one intent stay ordered.
type Publisher struct {
	writer Writer
}

// NewPublisher creates a Publisher.
func NewPublisher(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// Publish writes n. Its signature matches payment.Sink.
func (p *Publisher) Publish(ctx context.Context, n payment.Notification) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(n.IntentRef),
		Value:   Encode(n),
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write notification")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
