package pipeline_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
	"github.com/couchcryptid/climate-stats-etl/internal/observability"
	"github.com/couchcryptid/climate-stats-etl/internal/pipeline"
)

// sliceSource serves observations from memory in batches.
type sliceSource struct {
	rows  []domain.Observation
	pos   int
	calls int
}

func (s *sliceSource) ExtractBatch(_ context.Context, batchSize int) ([]domain.Observation, error) {
	s.calls++
	end := min(s.pos+batchSize, len(s.rows))
	batch := s.rows[s.pos:end]
	s.pos = end
	return batch, nil
}

// failingSource returns its rows once, then a structural error.
type failingSource struct {
	rows []domain.Observation
	err  error
	done bool
}

func (s *failingSource) ExtractBatch(_ context.Context, _ int) ([]domain.Observation, error) {
	if !s.done {
		s.done = true
		return s.rows, nil
	}
	return nil, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAggregator(workers int) *pipeline.Aggregator {
	return pipeline.NewAggregator(workers, 3, discardLogger(), observability.NewMetricsForTesting())
}

func obs(date, country string, temp float64) domain.Observation {
	return domain.Observation{Date: date, Country: country, TempC: temp}
}

func allYears() domain.Query {
	return domain.Query{StartYear: 1900, EndYear: 2100}
}

func threshold(v float64) *float64 { return &v }
