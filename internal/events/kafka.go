package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/efreitasn/clob/internal/domain"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by market id, so every
// event of a market lands on the same partition in order.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafka creates a publisher writing to topic on the given brokers.
// Writes are asynchronous: publishing only enqueues, and delivery
// failures, including writes exceeding timeout, are logged.
func NewKafka(brokers []string, topic string, timeout time.Duration, logger *slog.Logger) *Kafka {
	k := newKafka(nil, logger)
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		Async:        true,
		Completion:   k.completed,
	}
	return k
}

func newKafka(w messageWriter, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{writer: w, logger: logger}
}

// completed reports the outcome of an asynchronous batch.
func (k *Kafka) completed(msgs []kafka.Message, err error) {
	if err != nil {
		k.logger.Error("failed to publish events", "count", len(msgs), "error", err)
	}
}

// PublishFills writes one fill.executed message per fill.
func (k *Kafka) PublishFills(ctx context.Context, fills []domain.Fill) {
	if len(fills) == 0 {
		return
	}
	msgs := make([]kafka.Message, 0, len(fills))
	for _, f := range fills {
		msg, err := message(f.MarketID, fillEnvelope(f))
		if err != nil {
			k.logger.Error("failed to encode fill event", "fill_id", f.FillID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	k.write(ctx, msgs)
}

// PublishOrder writes one order.* message for the order's current state.
func (k *Kafka) PublishOrder(ctx context.Context, o domain.Order) {
	msg, err := message(o.MarketID, orderEnvelope(o))
	if err != nil {
		k.logger.Error("failed to encode order event", "market_id", o.MarketID, "order_id", o.OrderID, "error", err)
		return
	}
	k.write(ctx, []kafka.Message{msg})
}

func (k *Kafka) write(ctx context.Context, msgs []kafka.Message) {
	if len(msgs) == 0 {
		return
	}
	if err := k.writer.WriteMessages(context.WithoutCancel(ctx), msgs...); err != nil {
		k.completed(msgs, err)
	}
}

// Close flushes pending messages and closes the writer. Failures of the
// flushed batches go through the completion log.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func message(marketID domain.MarketID, e envelope) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(marketID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.Event)},
		},
	}, nil
}
