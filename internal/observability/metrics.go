package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the aggregation job.
type Metrics struct {
	RowsRead        prometheus.Counter
	RowsMatched     prometheus.Counter
	RejectedTemps   prometheus.Counter
	MalformedDates  prometheus.Counter
	GroupsFormed    prometheus.Counter
	OutliersRemoved prometheus.Counter
	RecordsProduced prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Stage timings.
	IngestBatchSize     prometheus.Histogram
	AggregationDuration prometheus.Histogram

	// Sink metrics.
	LoadDuration *prometheus.HistogramVec // labels: sink
	LoadErrors   *prometheus.CounterVec   // labels: sink
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsRead,
		m.RowsMatched,
		m.RejectedTemps,
		m.MalformedDates,
		m.GroupsFormed,
		m.OutliersRemoved,
		m.RecordsProduced,
		m.PipelineRunning,
		m.IngestBatchSize,
		m.AggregationDuration,
		m.LoadDuration,
		m.LoadErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "rows_read_total",
			Help:      "Total observation rows read from the source.",
		}),
		RowsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "rows_matched_total",
			Help:      "Rows that passed the country and year filters.",
		}),
		RejectedTemps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "rejected_temperatures_total",
			Help:      "Matched rows dropped for a non-finite or out-of-range temperature.",
		}),
		MalformedDates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "malformed_dates_total",
			Help:      "Rows dropped because the date did not parse.",
		}),
		GroupsFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "groups_formed_total",
			Help:      "Location/year/month groups built during ingest.",
		}),
		OutliersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "outliers_removed_total",
			Help:      "Values removed by the standard-deviation outlier filter.",
		}),
		RecordsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "records_produced_total",
			Help:      "Summary records produced.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_etl",
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "ingest_batch_size",
			Help:      "Number of observations per batch extracted from the source.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of ingest, reduction and sort for one run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "load_duration_seconds",
			Help:      "Time spent writing a run to each sink.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"sink"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "load_errors_total",
			Help:      "Failed sink write attempts.",
		}, []string{"sink"}),
	}
}
