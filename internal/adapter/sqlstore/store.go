package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS monthly_stats (
	run_id        TEXT    NOT NULL,
	generated_at  TEXT    NOT NULL,
	unit          TEXT    NOT NULL,
	country       TEXT    NOT NULL,
	year          INTEGER NOT NULL,
	month         INTEGER NOT NULL,
	avg_temp      REAL    NOT NULL,
	min_temp      REAL    NOT NULL,
	max_temp      REAL    NOT NULL,
	std_dev       REAL    NOT NULL,
	median_temp   REAL    NOT NULL,
	count         INTEGER NOT NULL,
	percentile_25 REAL    NOT NULL,
	percentile_75 REAL    NOT NULL,
	percentile_90 REAL    NOT NULL,
	percentile_95 REAL    NOT NULL,
	PRIMARY KEY (run_id, country, year, month)
)`

const upsert = `
INSERT INTO monthly_stats (
	run_id, generated_at, unit, country, year, month,
	avg_temp, min_temp, max_temp, std_dev, median_temp, count,
	percentile_25, percentile_75, percentile_90, percentile_95
) VALUES (
	:run_id, :generated_at, :unit, :country, :year, :month,
	:avg_temp, :min_temp, :max_temp, :std_dev, :median_temp, :count,
	:percentile_25, :percentile_75, :percentile_90, :percentile_95
)
ON CONFLICT (run_id, country, year, month) DO UPDATE SET
	generated_at  = excluded.generated_at,
	unit          = excluded.unit,
	avg_temp      = excluded.avg_temp,
	min_temp      = excluded.min_temp,
	max_temp      = excluded.max_temp,
	std_dev       = excluded.std_dev,
	median_temp   = excluded.median_temp,
	count         = excluded.count,
	percentile_25 = excluded.percentile_25,
	percentile_75 = excluded.percentile_75,
	percentile_90 = excluded.percentile_90,
	percentile_95 = excluded.percentile_95`

// row is one stored record together with its run metadata.
type row struct {
	RunID       string `db:"run_id"`
	GeneratedAt string `db:"generated_at"`
	Unit        string `db:"unit"`
	domain.SummaryRecord
}

// Store persists summary records to a SQL table keyed by run and group.
// It implements pipeline.RunLoader.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the database and creates the table if needed.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	// SQLite allows one writer; a single connection also keeps in-memory
	// databases alive across statements.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the monthly_stats table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadRun upserts every record of the run in one transaction, so replaying
// a run leaves the table unchanged.
func (s *Store) LoadRun(ctx context.Context, run domain.Run) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	generatedAt := run.GeneratedAt.UTC().Format(time.RFC3339Nano)
	for _, rec := range run.Records {
		r := row{RunID: run.ID, GeneratedAt: generatedAt, Unit: run.Unit, SummaryRecord: rec}
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored records", "run_id", run.ID, "count", len(run.Records))
	return nil
}

// Records returns the stored records of a run in (country, year, month) order.
func (s *Store) Records(ctx context.Context, runID string) ([]domain.SummaryRecord, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM monthly_stats WHERE run_id = ? ORDER BY country, year, month`, runID)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	out := make([]domain.SummaryRecord, len(rows))
	for i, r := range rows {
		out[i] = r.SummaryRecord
	}
	return out, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
