// Command validate checks a monthly summary JSON file produced by the etl
// command. It verifies per-record statistical invariants and key ordering and,
// when given the input CSV, recomputes every group with independent
// statistics packages and compares the results.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -json output/output/output.json \
//	  -input data/mock/observations.csv -countries US,FR -threshold 3
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/aclements/go-moremath/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/climate-stats-etl/internal/adapter/file"
	"github.com/couchcryptid/climate-stats-etl/internal/config"
	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

// tolerance for comparing recomputed statistics against the file.
const tolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	jsonPath  string
	inputPath string
	query     domain.Query
	cfg       domain.TransformConfig
}

func main() {
	jsonPath := flag.String("json", "", "path to the summary JSON written by etl")
	inputPath := flag.String("input", "", "optional observation CSV to recompute groups from")
	countries := flag.String("countries", "", "comma-separated country codes used for the run")
	startYear := flag.Int("start-year", 1980, "first year of the run")
	endYear := flag.Int("end-year", 2024, "last year of the run")
	unit := flag.String("unit", "celsius", "output unit of the run")
	threshold := flag.String("threshold", "", "outlier threshold of the run; empty if disabled")
	aggregate := flag.Bool("aggregate", false, "whether the run used aggregate mode")
	flag.Parse()

	if *jsonPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	u, err := domain.ParseTemperatureUnit(*unit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	thr, err := config.ParseThreshold(*threshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	opts := options{
		jsonPath:  *jsonPath,
		inputPath: *inputPath,
		query:     domain.Query{Countries: config.SplitList(*countries), StartYear: *startYear, EndYear: *endYear},
		cfg:       domain.TransformConfig{Unit: u, Threshold: thr, Aggregate: *aggregate},
	}
	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

func run(opts options) int {
	fmt.Println("=== Climate Summary Validation ===")
	fmt.Println()

	records, err := loadRecords(opts.jsonPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load summary JSON: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRecordInvariants(records),
		validateOrdering(records),
	}
	if opts.inputPath != "" {
		groups, err := loadGroups(opts.inputPath, opts.query, opts.cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load input CSV: %v\n", err)
			return 1
		}
		phases = append(phases, validateRecomputation(records, groups, opts.cfg.Threshold))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}
	fmt.Println()
	fmt.Printf("Records: %d\n", len(records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadRecords(path string) ([]domain.SummaryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.SummaryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// loadGroups reads the input CSV directly and groups accepted values the
// same way the job does.
func loadGroups(path string, q domain.Query, cfg domain.TransformConfig) (map[domain.GroupKey][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 1 {
		return nil, fmt.Errorf("no header in %s", path)
	}
	idx := map[string]int{}
	for i, h := range all[0] {
		idx[h] = i
	}
	for _, col := range []string{file.ColumnDate, file.ColumnCountry, file.ColumnTemp} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	filter := domain.NewLocationFilter(q.NormalizedCountries(), cfg.Aggregate)
	groups := make(map[domain.GroupKey][]float64)
	for _, row := range all[1:] {
		year, month, ok := domain.ParseObservationDate(row[idx[file.ColumnDate]])
		if !ok || year < q.StartYear || year > q.EndYear {
			continue
		}
		country := domain.NormalizeCountry(row[idx[file.ColumnCountry]])
		if !filter.Match(country) {
			continue
		}
		c, err := strconv.ParseFloat(row[idx[file.ColumnTemp]], 64)
		if err != nil {
			continue
		}
		v, ok := domain.ConvertTemperature(c, cfg.Unit)
		if !ok {
			continue
		}
		key := domain.GroupKey{Label: filter.Label(country), Year: year, Month: month}
		groups[key] = append(groups[key], v)
	}
	return groups, nil
}

func validateRecordInvariants(records []domain.SummaryRecord) *phase {
	p := &phase{name: "Record invariants"}
	for _, r := range records {
		key := r.Key()
		if r.Month < 1 || r.Month > 12 {
			p.errorf("%s: month out of range", key)
		}
		if r.Count < 1 {
			p.errorf("%s: count %d", key, r.Count)
		}
		if r.StdDev < 0 || (r.Count == 1 && r.StdDev != 0) {
			p.errorf("%s: std_dev %g with count %d", key, r.StdDev, r.Count)
		}
		if !ordered(r.MinTemp, r.AvgTemp, r.MaxTemp) {
			p.errorf("%s: avg %g outside [%g, %g]", key, r.AvgTemp, r.MinTemp, r.MaxTemp)
		}
		if !ordered(r.MinTemp, r.Percentile25, r.MedianTemp, r.Percentile75, r.Percentile90, r.Percentile95, r.MaxTemp) {
			p.errorf("%s: percentiles out of order", key)
		}
	}
	return p
}

func validateOrdering(records []domain.SummaryRecord) *phase {
	p := &phase{name: "Key ordering"}
	for i := 1; i < len(records); i++ {
		if domain.CompareGroupKeys(records[i-1].Key(), records[i].Key()) >= 0 {
			p.errorf("record %d (%s) does not follow %s", i, records[i].Key(), records[i-1].Key())
		}
	}
	return p
}

func validateRecomputation(records []domain.SummaryRecord, groups map[domain.GroupKey][]float64, threshold *float64) *phase {
	p := &phase{name: "Recomputation from input"}
	seen := make(map[domain.GroupKey]bool, len(records))
	for _, r := range records {
		key := r.Key()
		seen[key] = true
		values, ok := groups[key]
		if !ok {
			p.errorf("%s: not present in input", key)
			continue
		}
		s := stats.Sample{Xs: domain.FilterOutliers(values, threshold)}
		if len(s.Xs) != r.Count {
			p.errorf("%s: count %d, recomputed %d", key, r.Count, len(s.Xs))
			continue
		}
		lo, hi := s.Bounds()
		check(p, key, "min_temp", r.MinTemp, lo)
		check(p, key, "max_temp", r.MaxTemp, hi)
		check(p, key, "avg_temp", r.AvgTemp, s.Mean())
		if len(s.Xs) > 1 {
			check(p, key, "std_dev", r.StdDev, stat.StdDev(s.Xs, nil))
		}
	}
	for key, values := range groups {
		if !seen[key] && len(domain.FilterOutliers(values, threshold)) > 0 {
			p.errorf("%s: missing from summary", key)
		}
	}
	return p
}

func check(p *phase, key domain.GroupKey, field string, got, want float64) {
	if math.Abs(got-want) > tolerance*math.Max(1, math.Abs(want)) {
		p.errorf("%s: %s %g, recomputed %g", key, field, got, want)
	}
}

// ordered reports whether xs is non-decreasing, allowing for float rounding.
func ordered(xs ...float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i]+tolerance < xs[i-1] {
			return false
		}
	}
	return true
}
