package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", "file::memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(id string, records ...domain.SummaryRecord) domain.Run {
	return domain.Run{
		ID:          id,
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Unit:        "celsius",
		Records:     records,
	}
}

func TestStore_LoadRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	us := domain.Summarize(domain.GroupKey{Label: "US", Year: 2020, Month: 2}, []float64{1, 2, 3})
	fr := domain.Summarize(domain.GroupKey{Label: "FR", Year: 2020, Month: 1}, []float64{0, 10, 20, 30})
	require.NoError(t, s.LoadRun(ctx, testRun("run-1", us, fr)))

	got, err := s.Records(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SummaryRecord{fr, us}, got)

	other, err := s.Records(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_LoadRunIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := domain.Summarize(domain.GroupKey{Label: "FR", Year: 2021, Month: 6}, []float64{18, 22})
	run := testRun("run-1", rec)
	require.NoError(t, s.LoadRun(ctx, run))
	require.NoError(t, s.LoadRun(ctx, run))

	got, err := s.Records(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])

	// A replay with different values replaces the stored row.
	updated := domain.Summarize(rec.Key(), []float64{10})
	require.NoError(t, s.LoadRun(ctx, testRun("run-1", updated)))
	got, err = s.Records(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, 10.0, got[0].AvgTemp)
}

func TestStore_LoadRunCancelled(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := domain.Summarize(domain.GroupKey{Label: "FR", Year: 2021, Month: 6}, []float64{18})
	err := s.LoadRun(ctx, testRun("run-1", rec))
	require.Error(t, err)

	got, err := s.Records(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_CheckReadiness(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.CheckReadiness(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "nosuchdriver", "x", slog.Default())
	assert.Error(t, err)
}
