package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

// Writer publishes ranked leads to a Kafka topic for downstream consumers
// such as a CRM importer. It implements pipeline.LeadSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the leads topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes leads in a single WriteMessages call.
// Messages are keyed by lead id so updates for a lead stay on one partition.
func (w *Writer) LoadBatch(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(leads))
	for i := range leads {
		msg, err := serializeToMessage(leads[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d leads: %w", len(msgs), err)
	}
	w.logger.Debug("leads published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Lead into a Kafka message.
func serializeToMessage(lead domain.Lead) (kafkago.Message, error) {
	data, err := json.Marshal(lead)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize lead: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(lead.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "industry", Value: []byte(lead.Industry)},
			{Key: "income_tier", Value: []byte(lead.IncomeTier)},
			{Key: "lead_score", Value: []byte(strconv.Itoa(lead.LeadScore))},
		},
	}, nil
}
