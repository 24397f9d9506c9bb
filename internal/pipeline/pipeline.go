package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
	"github.com/couchcryptid/climate-stats-etl/internal/observability"
)

// RunLoader writes a finished run to a destination.
type RunLoader interface {
	LoadRun(ctx context.Context, run domain.Run) error
}

// Committer is implemented by sources that acknowledge consumed input. Commit
// is called only after every sink has loaded the run.
type Committer interface {
	Commit(ctx context.Context) error
}

// readinessChecker is implemented by sinks that hold a live connection.
type readinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Sink is a named RunLoader; the name labels logs and metrics.
type Sink struct {
	Name   string
	Loader RunLoader
}

// Pipeline orchestrates extract, aggregate and load for one run.
type Pipeline struct {
	source      ObservationSource
	aggregator  *Aggregator
	sinks       []Sink
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
	ready       atomic.Bool
	last        atomic.Pointer[domain.Run]
}

// New creates a Pipeline with the given stages and observability.
// maxAttempts bounds how often a failing sink write is tried.
func New(src ObservationSource, agg *Aggregator, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics, maxAttempts int) *Pipeline {
	return &Pipeline{
		source:      src,
		aggregator:  agg,
		sinks:       sinks,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: max(maxAttempts, 1),
	}
}

// CheckReadiness returns nil once a run has been aggregated and loaded and
// every sink that can report its health is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	for _, sink := range p.sinks {
		checker, ok := sink.Loader.(readinessChecker)
		if !ok {
			continue
		}
		if err := checker.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("sink %s: %w", sink.Name, err)
		}
	}
	return nil
}

// LastRun returns the most recently aggregated run, if any.
func (p *Pipeline) LastRun() (domain.Run, bool) {
	run := p.last.Load()
	if run == nil {
		return domain.Run{}, false
	}
	return *run, true
}

// Run aggregates the source once and writes the result to every sink in order.
// A source error aborts before any sink is touched. Consumed input is
// committed only after the last sink succeeds.
func (p *Pipeline) Run(ctx context.Context, q domain.Query, cfg domain.TransformConfig) (domain.Run, error) {
	start := time.Now()
	p.logger.Info("pipeline started",
		"countries", domain.LocationLabel(q.NormalizedCountries()),
		"start_year", q.StartYear,
		"end_year", q.EndYear,
		"unit", cfg.Unit.String(),
		"aggregate", cfg.Aggregate,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	records, diag, err := p.aggregator.Aggregate(ctx, p.source, q, cfg)
	if err != nil {
		return domain.Run{}, fmt.Errorf("aggregate: %w", err)
	}
	aggregated := time.Since(start)

	run := domain.NewRun(q, cfg, diag, records)
	p.last.Store(&run)
	p.logger.Info("aggregation completed",
		"run_id", run.ID,
		"records", len(records),
		"outliers_removed", diag.OutliersRemoved,
		"duration", aggregated,
	)
	if len(records) > 0 {
		first := records[0]
		p.logger.Debug("sample record",
			"country", first.Country,
			"year", first.Year,
			"month", first.Month,
			"avg_temp", fmt.Sprintf("%.1f%s", first.AvgTemp, cfg.Unit.Symbol()),
			"count", first.Count,
		)
	}

	for _, sink := range p.sinks {
		if err := p.load(ctx, sink, run); err != nil {
			return run, fmt.Errorf("load %s: %w", sink.Name, err)
		}
	}

	if c, ok := p.source.(Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return run, fmt.Errorf("commit source: %w", err)
		}
	}

	p.ready.Store(true)
	total := time.Since(start)
	p.logger.Info("pipeline completed",
		"run_id", run.ID,
		"sinks", len(p.sinks),
		"duration", total,
		"load_duration", total-aggregated,
	)
	return run, nil
}

// load writes run to one sink, retrying with exponential backoff.
func (p *Pipeline) load(ctx context.Context, sink Sink, run domain.Run) error {
	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := sink.Loader.LoadRun(ctx, run)
		if err == nil {
			p.metrics.LoadDuration.WithLabelValues(sink.Name).Observe(time.Since(start).Seconds())
			p.logger.Info("run loaded", "sink", sink.Name, "records", len(run.Records))
			return nil
		}

		p.metrics.LoadErrors.WithLabelValues(sink.Name).Inc()
		if ctx.Err() != nil || attempt >= p.maxAttempts {
			return err
		}
		p.logger.Warn("load failed, retrying",
			"sink", sink.Name,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !sleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
