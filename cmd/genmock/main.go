// Command genmock writes a deterministic synthetic daily-observation CSV and,
// optionally, the monthly summary fixture the aggregation produces for it.
// The fixture is computed with the real pipeline packages so tests that load
// it match actual job behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv-out data/mock/observations.csv \
//	  -json-out data/mock/monthly_stats.json \
//	  -countries US,FR,DE,NA -start-year 2019 -end-year 2020
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-stats-etl/internal/adapter/file"
	"github.com/couchcryptid/climate-stats-etl/internal/config"
	"github.com/couchcryptid/climate-stats-etl/internal/domain"
	"github.com/couchcryptid/climate-stats-etl/internal/observability"
	"github.com/couchcryptid/climate-stats-etl/internal/pipeline"
)

// Annual mean and seasonal amplitude per country, in °C. Southern-hemisphere
// countries get a negative amplitude so January is warm.
var climates = map[string]struct{ mean, amplitude float64 }{
	"US": {12, 11},
	"FR": {12, 8},
	"DE": {9, 9},
	"NA": {21, -5},
	"BR": {25, -3},
	"NO": {2, 10},
}

// Row anomalies injected so that fixtures exercise the cleaning rules.
const (
	anomalyNone = iota
	anomalyBadDate
	anomalyHot
	anomalySpike
)

type genStats struct {
	rows       int
	perCountry map[string]int
	anomalies  map[int]int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvOut := flag.String("csv-out", "", "output path for the observation CSV")
	jsonOut := flag.String("json-out", "", "optional output path for the monthly summary fixture")
	countries := flag.String("countries", "US,FR,DE,NA", "comma-separated country codes to generate")
	startYear := flag.Int("start-year", 2019, "first year to generate")
	endYear := flag.Int("end-year", 2020, "last year to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	anomalyRate := flag.Float64("anomaly-rate", 0.01, "fraction of rows with a bad date or temperature")
	threshold := flag.String("threshold", "3", "outlier threshold used for the fixture; empty disables")
	flag.Parse()

	if *csvOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -csv-out")
	}
	if *startYear > *endYear {
		return fmt.Errorf("-start-year %d is after -end-year %d", *startYear, *endYear)
	}
	codes := config.SplitList(*countries)
	for _, c := range codes {
		if _, ok := climates[c]; !ok {
			return fmt.Errorf("no climate profile for country %q", c)
		}
	}

	stats, err := writeObservations(*csvOut, codes, *startYear, *endYear, *seed, *anomalyRate)
	if err != nil {
		return fmt.Errorf("writing observations: %w", err)
	}
	log.Printf("wrote observations: %s (%d rows)", *csvOut, stats.rows)
	printStats(stats)

	if *jsonOut == "" {
		return nil
	}
	thr, err := config.ParseThreshold(*threshold)
	if err != nil {
		return err
	}
	q := domain.Query{Countries: codes, StartYear: *startYear, EndYear: *endYear}
	if err := writeFixture(*csvOut, *jsonOut, q, thr); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote summary fixture: %s", *jsonOut)
	return nil
}

func writeObservations(path string, countries []string, startYear, endYear int, seed uint64, anomalyRate float64) (genStats, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return genStats{}, err
	}
	f, err := os.Create(path)
	if err != nil {
		return genStats{}, err
	}
	defer f.Close()

	stats, err := generate(f, countries, startYear, endYear, seed, anomalyRate)
	if err != nil {
		return stats, err
	}
	return stats, f.Close()
}

// generate emits one row per country per day, country-major.
func generate(w io.Writer, countries []string, startYear, endYear int, seed uint64, anomalyRate float64) (genStats, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	stats := genStats{perCountry: map[string]int{}, anomalies: map[int]int{}}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{file.ColumnDate, file.ColumnCountry, file.ColumnTemp}); err != nil {
		return stats, err
	}

	first := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(endYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	for _, country := range countries {
		clim := climates[country]
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			season := math.Cos(2 * math.Pi * float64(day.YearDay()-15) / 365.25)
			temp := clim.mean + clim.amplitude*season + rng.NormFloat64()*2
			date := day.Format(domain.DateLayout)

			kind := anomalyNone
			if rng.Float64() < anomalyRate {
				kind = 1 + rng.IntN(3)
			}
			switch kind {
			case anomalyBadDate:
				date = fmt.Sprintf("%d-%02d-32", day.Year(), int(day.Month()))
			case anomalyHot:
				temp = 150
			case anomalySpike:
				temp += 40
			}
			stats.anomalies[kind]++

			row := []string{date, country, strconv.FormatFloat(temp, 'f', 2, 64)}
			if err := cw.Write(row); err != nil {
				return stats, err
			}
			stats.rows++
			stats.perCountry[country]++
		}
	}
	cw.Flush()
	return stats, cw.Error()
}

// writeFixture runs the aggregation over the generated CSV with a fixed clock.
func writeFixture(csvPath, jsonPath string, q domain.Query, threshold *float64) error {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	src, err := file.OpenSource(csvPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := pipeline.NewAggregator(4, 500, logger, observability.NewMetricsForTesting())

	cfg := domain.DefaultTransformConfig()
	cfg.Threshold = threshold
	records, diag, err := agg.Aggregate(context.Background(), src, q, cfg)
	if err != nil {
		return err
	}
	log.Printf("fixture: %d records, %d outliers removed, %d rejected temps, %d malformed dates",
		len(records), diag.OutliersRemoved, diag.RejectedTemps, diag.MalformedDates)

	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(jsonPath, data, 0o600)
}

func printStats(s genStats) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", s.rows)

	countries := make([]string, 0, len(s.perCountry))
	for c := range s.perCountry {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	fmt.Print("By country:")
	for _, c := range countries {
		fmt.Printf(" %s=%d", c, s.perCountry[c])
	}
	fmt.Println()
	fmt.Printf("Anomalies: bad_date=%d, hot=%d, spike=%d\n",
		s.anomalies[anomalyBadDate], s.anomalies[anomalyHot], s.anomalies[anomalySpike])
}
