package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/climate-stats-etl/internal/config"
	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

// Writer publishes summary records to a Kafka topic, one message per group.
// It implements pipeline.RunLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadRun publishes every record of the run in a single WriteMessages call.
// Records are keyed by group so a group always lands on the same partition.
func (w *Writer) LoadRun(ctx context.Context, run domain.Run) error {
	if len(run.Records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(run.Records))
	for i := range run.Records {
		msg, err := serializeToMessage(run, run.Records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("published records", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// recordKey identifies a group: label|year|month.
func recordKey(r domain.SummaryRecord) string {
	return r.Country + "|" + strconv.Itoa(r.Year) + "|" + strconv.Itoa(r.Month)
}

// serializeToMessage marshals a SummaryRecord into a Kafka message.
func serializeToMessage(run domain.Run, record domain.SummaryRecord) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(recordKey(record)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(run.ID)},
			{Key: "unit", Value: []byte(run.Unit)},
			{Key: "generated_at", Value: []byte(run.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
