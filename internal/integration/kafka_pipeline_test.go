//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-stats-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-stats-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/climate-stats-etl/internal/config"
	"github.com/couchcryptid/climate-stats-etl/internal/domain"
	"github.com/couchcryptid/climate-stats-etl/internal/observability"
	"github.com/couchcryptid/climate-stats-etl/internal/pipeline"
)

const (
	testSourceTopic = "test-observations"
	testSinkTopic   = "test-monthly-stats"
)

// sinkMessage holds a deserialized record read from the sink topic.
type sinkMessage struct {
	Record  domain.SummaryRecord
	Key     string
	Headers map[string]string
}

func readSinkMessage(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rec domain.SummaryRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal sink message")
	return sinkMessage{Record: rec, Key: string(msg.Key), Headers: headers}
}

func observationMessages(t *testing.T) []kafkago.Message {
	t.Helper()
	rows := []struct {
		Date    string  `json:"date"`
		Country string  `json:"country_alpha2"`
		TempC   float64 `json:"temp_mean_c_approx"`
	}{
		{"2020-01-01", "FR", 0},
		{"2020-01-02", "FR", 10},
		{"2020-01-03", "fr", 20},
		{"2020-01-04", "FR", 30},
		{"2020-02-01", "US", 4},
		{"2020-02-02", "US", 6},
		{"2020-02-03", "US", 150},
		{"2020-13-01", "US", 5},
		{"2020-02-04", "DE", 1},
	}
	msgs := make([]kafkago.Message, 0, len(rows)+1)
	for i, r := range rows {
		payload, err := json.Marshal(r)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("obs-%d", i)), Value: payload})
	}
	// Poison pill: skipped by the reader, never aborts the run.
	msgs = append(msgs, kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")})
	return msgs
}

// TestKafkaPipelineEndToEnd drains observations from Kafka, aggregates them,
// and loads the records into Kafka and SQLite.
func TestKafkaPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaSourceTopic: testSourceTopic,
		KafkaSinkTopic:   testSinkTopic,
		KafkaGroupID:     fmt.Sprintf("test-pipeline-%d", time.Now().UnixNano()),
		// Long enough to cover the consumer group join.
		KafkaIdleTimeout: 15 * time.Second,
	}

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, observationMessages(t)...))

	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	store, err := sqlstore.Open(ctx, "sqlite", "file::memory:", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics := observability.NewMetricsForTesting()
	agg := pipeline.NewAggregator(2, 4, discardLogger(), metrics)
	p := pipeline.New(reader, agg, []pipeline.Sink{
		{Name: "kafka", Loader: writer},
		{Name: "sql", Loader: store},
	}, discardLogger(), metrics, 3)

	q := domain.Query{Countries: []string{"FR", "US"}, StartYear: 2020, EndYear: 2020}
	run, err := p.Run(ctx, q, domain.DefaultTransformConfig())
	require.NoError(t, err)

	assert.Equal(t, 9, run.Diagnostics.TotalRows)
	assert.Equal(t, 1, run.Diagnostics.MalformedDates)
	assert.Equal(t, 1, run.Diagnostics.RejectedTemps)
	require.Len(t, run.Records, 2)

	fr, us := run.Records[0], run.Records[1]
	assert.Equal(t, domain.GroupKey{Label: "FR", Year: 2020, Month: 1}, fr.Key())
	assert.Equal(t, 4, fr.Count)
	assert.InDelta(t, 15.0, fr.AvgTemp, 1e-9)
	assert.Equal(t, domain.GroupKey{Label: "US", Year: 2020, Month: 2}, us.Key())
	assert.Equal(t, 2, us.Count)
	assert.InDelta(t, 5.0, us.AvgTemp, 1e-9)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := map[string]sinkMessage{}
	for len(received) < len(run.Records) {
		m := readSinkMessage(ctx, t, consumer)
		received[m.Key] = m
	}
	require.Contains(t, received, "FR|2020|1")
	require.Contains(t, received, "US|2020|2")
	assert.Equal(t, fr, received["FR|2020|1"].Record)
	for _, m := range received {
		assert.Equal(t, run.ID, m.Headers["run_id"])
		assert.Equal(t, "celsius", m.Headers["unit"])
		_, err := time.Parse(time.RFC3339, m.Headers["generated_at"])
		assert.NoError(t, err, "generated_at should be valid RFC3339")
	}

	stored, err := store.Records(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Records, stored)
}

// TestKafkaReaderDrainsEmptyTopic verifies an idle topic ends the extract
// with no records instead of blocking.
func TestKafkaReaderDrainsEmptyTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaSourceTopic: testSourceTopic,
		KafkaGroupID:     fmt.Sprintf("test-empty-%d", time.Now().UnixNano()),
		KafkaIdleTimeout: 5 * time.Second,
	}
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	// Once drained, the reader keeps reporting exhaustion without fetching.
	batch, err = reader.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
