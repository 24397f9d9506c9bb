package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/climate-stats-etl/internal/config"
	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

// Reader drains raw observations from a Kafka topic. The topic is treated as
// a bounded extract: once no message arrives within the idle timeout the
// reader reports itself exhausted. Offsets are held until Commit, so a run
// that fails before every sink is loaded leaves the input on the topic.
// It implements pipeline.ObservationSource and pipeline.Committer.
type Reader struct {
	reader      *kafkago.Reader
	idleTimeout time.Duration
	logger      *slog.Logger
	drained     bool
	skipped     int
	pending     []kafkago.Message
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSourceTopic,
		GroupID:     cfg.KafkaGroupID,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Reader{reader: r, idleTimeout: cfg.KafkaIdleTimeout, logger: logger}
}

// ExtractBatch fetches up to batchSize observations. Messages that are not
// valid observation JSON are logged and skipped; they are committed with the rest.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.Observation, error) {
	if r.drained {
		return nil, nil
	}

	batch := make([]domain.Observation, 0, batchSize)
	// Skipped messages do not count towards the batch, so an empty batch
	// only ever means the topic is drained.
	for len(batch) < batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, r.idleTimeout)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				r.drained = true
				r.logger.Info("source topic idle, extract complete", "skipped", r.skipped)
				break
			}
			return nil, fmt.Errorf("fetch message: %w", err)
		}
		r.pending = append(r.pending, msg)

		obs, err := mapMessageToObservation(msg)
		if err != nil {
			r.skipped++
			r.logger.Warn("skipping undecodable message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		batch = append(batch, obs)
	}

	return batch, nil
}

// Commit acknowledges every message fetched so far.
func (r *Reader) Commit(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.reader.CommitMessages(ctx, r.pending...); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	r.logger.Info("committed source offsets", "messages", len(r.pending))
	r.pending = nil
	return nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToObservation decodes a message value into an Observation.
func mapMessageToObservation(msg kafkago.Message) (domain.Observation, error) {
	var wire struct {
		Date    string   `json:"date"`
		Country string   `json:"country_alpha2"`
		TempC   *float64 `json:"temp_mean_c_approx"`
	}
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		return domain.Observation{}, fmt.Errorf("decode observation: %w", err)
	}
	if wire.TempC == nil {
		return domain.Observation{}, errors.New("decode observation: missing temp_mean_c_approx")
	}
	return domain.Observation{Date: wire.Date, Country: wire.Country, TempC: *wire.TempC}, nil
}
