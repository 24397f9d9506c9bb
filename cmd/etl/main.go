// Command etl runs one monthly climate aggregation: it reads daily
// observations from a file or Kafka topic, groups and summarizes them, and
// writes the records to every configured sink. Environment variables configure
// the job; flags override them.
//
// The HTTP server (/healthz, /readyz, /metrics, /records) lives only as long
// as the process. By default the process exits once the run has been loaded,
// so /readyz reports ready only briefly. With -serve or SERVE_AFTER_RUN=true
// the server keeps serving the finished run until SIGINT or SIGTERM.
//
// Usage:
//
//	go run ./cmd/etl -input data/observations.csv -countries US,FR \
//	  -start-year 2000 -end-year 2020 -unit fahrenheit -threshold 3
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/climate-stats-etl/internal/adapter/file"
	"github.com/couchcryptid/climate-stats-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/climate-stats-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-stats-etl/internal/adapter/rabbitmq"
	"github.com/couchcryptid/climate-stats-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/climate-stats-etl/internal/config"
	"github.com/couchcryptid/climate-stats-etl/internal/domain"
	"github.com/couchcryptid/climate-stats-etl/internal/observability"
	"github.com/couchcryptid/climate-stats-etl/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("etl failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flagOverrides(os.Args[1:])...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}()

	src, err := newSource(cfg, logger, &closers)
	if err != nil {
		return err
	}
	sinks, err := newSinks(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}

	agg := pipeline.NewAggregator(cfg.AggregationWorkers, cfg.BatchSize, logger, metrics)
	p := pipeline.New(src, agg, sinks, logger, metrics, cfg.LoadMaxAttempts)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
	}()

	result, err := p.Run(ctx, cfg.Query(), cfg.TransformConfig())
	if err != nil {
		return err
	}
	logger.Info("run finished",
		"run_id", result.ID,
		"records", len(result.Records),
		"total_rows", result.Diagnostics.TotalRows,
		"matched_rows", result.Diagnostics.MatchedRows,
	)

	if cfg.ServeAfterRun {
		logger.Info("serving results until signal", "addr", cfg.HTTPAddr)
		<-ctx.Done()
	}
	return nil
}

func newSource(cfg *config.Config, logger *slog.Logger, closers *[]io.Closer) (pipeline.ObservationSource, error) {
	switch cfg.Source {
	case config.SourceKafka:
		r := kafkaadapter.NewReader(cfg, logger)
		*closers = append(*closers, r)
		return r, nil
	default:
		src, err := file.OpenSource(cfg.InputPath)
		if err != nil {
			return nil, err
		}
		logger.Info("source loaded", "path", cfg.InputPath, "rows", src.Len())
		return src, nil
	}
}

func newSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger, closers *[]io.Closer) ([]pipeline.Sink, error) {
	sinks := make([]pipeline.Sink, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		var loader pipeline.RunLoader
		switch name {
		case config.SinkFile:
			loader = file.NewWriter(cfg.OutputDir, cfg.OutputName)
		case config.SinkSQL:
			store, err := sqlstore.Open(ctx, cfg.SQLDriver, cfg.SQLDSN, logger)
			if err != nil {
				return nil, err
			}
			*closers = append(*closers, store)
			loader = store
		case config.SinkKafka:
			w := kafkaadapter.NewWriter(cfg, logger)
			*closers = append(*closers, w)
			loader = w
		case config.SinkRabbitMQ:
			pub, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
			if err != nil {
				return nil, err
			}
			*closers = append(*closers, pub)
			loader = pub
		}
		sinks = append(sinks, pipeline.Sink{Name: name, Loader: loader})
	}
	return sinks, nil
}

// flagOverrides parses the command line and returns an override for every
// flag that was set explicitly, so unset flags leave the environment alone.
func flagOverrides(args []string) []config.Override {
	fs := flag.NewFlagSet("etl", flag.ExitOnError)
	input := fs.String("input", "", "observation CSV or JSON file")
	countries := fs.String("countries", "", "comma-separated ISO alpha-2 country codes")
	startYear := fs.Int("start-year", 0, "first year to include")
	endYear := fs.Int("end-year", 0, "last year to include")
	unit := fs.String("unit", "", "celsius, fahrenheit or kelvin")
	threshold := fs.String("threshold", "", "outlier threshold in standard deviations")
	aggregate := fs.Bool("aggregate", false, "merge all countries into one location")
	output := fs.String("output", "", "output base name")
	serve := fs.Bool("serve", false, "keep the HTTP server up after the run until signalled")
	_ = fs.Parse(args)

	var overrides []config.Override
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			overrides = append(overrides, func(c *config.Config) error {
				c.InputPath = *input
				return nil
			})
		case "countries":
			overrides = append(overrides, func(c *config.Config) error {
				c.Countries = config.SplitList(*countries)
				return nil
			})
		case "start-year":
			overrides = append(overrides, func(c *config.Config) error {
				c.StartYear = *startYear
				return nil
			})
		case "end-year":
			overrides = append(overrides, func(c *config.Config) error {
				c.EndYear = *endYear
				return nil
			})
		case "unit":
			overrides = append(overrides, func(c *config.Config) error {
				u, err := domain.ParseTemperatureUnit(*unit)
				if err != nil {
					return fmt.Errorf("invalid -unit: %w", err)
				}
				c.Unit = u
				return nil
			})
		case "threshold":
			overrides = append(overrides, func(c *config.Config) error {
				v, err := config.ParseThreshold(*threshold)
				if err != nil {
					return fmt.Errorf("invalid -threshold: %w", err)
				}
				c.OutlierThreshold = v
				return nil
			})
		case "aggregate":
			overrides = append(overrides, func(c *config.Config) error {
				c.Aggregate = *aggregate
				return nil
			})
		case "output":
			overrides = append(overrides, func(c *config.Config) error {
				c.OutputName = *output
				return nil
			})
		case "serve":
			overrides = append(overrides, func(c *config.Config) error {
				c.ServeAfterRun = *serve
				return nil
			})
		}
	})
	return overrides
}
