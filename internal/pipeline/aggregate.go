package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
	"github.com/couchcryptid/climate-stats-etl/internal/observability"
)

// ObservationSource yields raw observations in batches of at most batchSize.
// An empty batch with a nil error means the source is exhausted. Any error is
// structural and aborts the run.
type ObservationSource interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.Observation, error)
}

// Aggregator turns an observation stream into sorted monthly summary records.
type Aggregator struct {
	workers   int
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAggregator creates an Aggregator that reduces groups on the given number
// of worker goroutines and reads the source batchSize rows at a time.
func NewAggregator(workers, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		workers:   max(workers, 1),
		batchSize: max(batchSize, 1),
		logger:    logger,
		metrics:   metrics,
	}
}

// groupValues maps each group to its accepted values in ingest order. It is
// owned by a single Aggregate call and is read-only once ingest returns.
type groupValues map[domain.GroupKey][]float64

// Aggregate ingests src sequentially, reduces every group in parallel, and
// returns the records sorted by (label, year, month). Data-quality drops are
// only counted in the returned Diagnostics.
func (a *Aggregator) Aggregate(ctx context.Context, src ObservationSource, q domain.Query, cfg domain.TransformConfig) ([]domain.SummaryRecord, domain.Diagnostics, error) {
	start := time.Now()

	groups, diag, err := a.ingest(ctx, src, q, cfg)
	if err != nil {
		return nil, diag, err
	}
	a.logger.Info("ingest complete",
		"total_rows", diag.TotalRows,
		"matched_rows", diag.MatchedRows,
		"groups", diag.Groups,
	)
	a.logger.Debug("ingest drops",
		"malformed_dates", diag.MalformedDates,
		"rejected_temps", diag.RejectedTemps,
	)
	if cfg.Threshold != nil {
		a.logger.Debug("outlier detection enabled", "threshold", *cfg.Threshold)
	}

	records, removed, empty := a.reduce(groups, cfg.Threshold)
	diag.OutliersRemoved = removed
	diag.EmptyGroups = empty

	slices.SortFunc(records, func(x, y domain.SummaryRecord) int {
		return domain.CompareGroupKeys(x.Key(), y.Key())
	})

	a.metrics.GroupsFormed.Add(float64(diag.Groups))
	a.metrics.OutliersRemoved.Add(float64(removed))
	a.metrics.RecordsProduced.Add(float64(len(records)))
	a.metrics.AggregationDuration.Observe(time.Since(start).Seconds())

	return records, diag, nil
}

// ingest reads every batch from src and accumulates accepted, converted values
// per group on the calling goroutine.
func (a *Aggregator) ingest(ctx context.Context, src ObservationSource, q domain.Query, cfg domain.TransformConfig) (groupValues, domain.Diagnostics, error) {
	var diag domain.Diagnostics
	groups := make(groupValues)
	filter := domain.NewLocationFilter(q.NormalizedCountries(), cfg.Aggregate)

	for {
		if err := ctx.Err(); err != nil {
			return nil, diag, err
		}

		batch, err := src.ExtractBatch(ctx, a.batchSize)
		if err != nil {
			return nil, diag, fmt.Errorf("read observations: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		a.metrics.IngestBatchSize.Observe(float64(len(batch)))

		before := diag
		for _, obs := range batch {
			a.accumulate(groups, &diag, filter, q, cfg.Unit, obs)
		}
		a.metrics.RowsRead.Add(float64(diag.TotalRows - before.TotalRows))
		a.metrics.MalformedDates.Add(float64(diag.MalformedDates - before.MalformedDates))
		a.metrics.RowsMatched.Add(float64(diag.MatchedRows - before.MatchedRows))
		a.metrics.RejectedTemps.Add(float64(diag.RejectedTemps - before.RejectedTemps))
	}

	diag.Groups = len(groups)
	return groups, diag, nil
}

func (a *Aggregator) accumulate(groups groupValues, diag *domain.Diagnostics, filter domain.LocationFilter, q domain.Query, unit domain.TemperatureUnit, obs domain.Observation) {
	diag.TotalRows++

	year, month, ok := domain.ParseObservationDate(obs.Date)
	if !ok {
		diag.MalformedDates++
		return
	}

	country := domain.NormalizeCountry(obs.Country)
	if !filter.Match(country) || year < q.StartYear || year > q.EndYear {
		return
	}
	diag.MatchedRows++

	v, ok := domain.ConvertTemperature(obs.TempC, unit)
	if !ok {
		diag.RejectedTemps++
		return
	}

	key := domain.GroupKey{Label: filter.Label(country), Year: year, Month: month}
	groups[key] = append(groups[key], v)
}

// reduction is the outcome of one group's outlier filter and summary.
type reduction struct {
	record  domain.SummaryRecord
	ok      bool
	removed int
}

// reduce runs the outlier filter and statistics for every group on a fixed
// pool of workers. Each worker writes only its own slots of the result slice.
func (a *Aggregator) reduce(groups groupValues, threshold *float64) (records []domain.SummaryRecord, removed, empty int) {
	keys := maps.Keys(groups)
	results := make([]reduction, len(keys))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(a.workers, len(keys)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = a.reduceGroup(keys[i], groups[keys[i]], threshold)
			}
		}()
	}
	for i := range keys {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	records = make([]domain.SummaryRecord, 0, len(results))
	for _, r := range results {
		removed += r.removed
		if !r.ok {
			empty++
			continue
		}
		records = append(records, r.record)
	}
	return records, removed, empty
}

func (a *Aggregator) reduceGroup(key domain.GroupKey, values []float64, threshold *float64) reduction {
	if len(values) == 0 {
		return reduction{}
	}

	cleaned := domain.FilterOutliers(values, threshold)
	removed := len(values) - len(cleaned)
	if removed > 0 {
		a.logger.Debug("removed outliers", "group", key.String(), "removed", removed)
	}
	if len(cleaned) == 0 {
		return reduction{removed: removed}
	}

	return reduction{record: domain.Summarize(key, cleaned), ok: true, removed: removed}
}
