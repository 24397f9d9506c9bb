package domain

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted observation date format.
const DateLayout = "2006-01-02"

// AllLocationsLabel labels the single aggregate bucket when no countries were requested.
const AllLocationsLabel = "ALL"

// Observation is one raw row handed over by a source.
type Observation struct {
	Date    string  `json:"date"`
	Country string  `json:"country_alpha2"`
	TempC   float64 `json:"temp_mean_c_approx"`
}

// ParseObservationDate returns the year and month of an observation date.
func ParseObservationDate(s string) (year, month int, ok bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, false
	}
	return t.Year(), int(t.Month()), true
}

// NormalizeCountry trims and upper-cases a country code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GroupKey identifies one bucket of observations.
type GroupKey struct {
	Label string
	Year  int
	Month int
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%d/%02d", k.Label, k.Year, k.Month)
}

// CompareGroupKeys orders keys by label, then year, then month.
func CompareGroupKeys(a, b GroupKey) int {
	if c := cmp.Compare(a.Label, b.Label); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Year, b.Year); c != 0 {
		return c
	}
	return cmp.Compare(a.Month, b.Month)
}

// SummaryRecord holds the statistics of one group after cleaning, unit
// conversion and outlier removal. All temperatures are in the run's unit.
type SummaryRecord struct {
	Country      string  `json:"country" db:"country"`
	Year         int     `json:"year" db:"year"`
	Month        int     `json:"month" db:"month"`
	AvgTemp      float64 `json:"avg_temp" db:"avg_temp"`
	MinTemp      float64 `json:"min_temp" db:"min_temp"`
	MaxTemp      float64 `json:"max_temp" db:"max_temp"`
	StdDev       float64 `json:"std_dev" db:"std_dev"`
	MedianTemp   float64 `json:"median_temp" db:"median_temp"`
	Count        int     `json:"count" db:"count"`
	Percentile25 float64 `json:"percentile_25" db:"percentile_25"`
	Percentile75 float64 `json:"percentile_75" db:"percentile_75"`
	Percentile90 float64 `json:"percentile_90" db:"percentile_90"`
	Percentile95 float64 `json:"percentile_95" db:"percentile_95"`
}

// Key returns the group key the record was computed for.
func (r SummaryRecord) Key() GroupKey {
	return GroupKey{Label: r.Country, Year: r.Year, Month: r.Month}
}

// Query selects which observations take part in a run.
type Query struct {
	Countries []string // empty means every country
	StartYear int      // inclusive
	EndYear   int      // inclusive
}

// NormalizedCountries returns the requested codes normalized and de-duplicated,
// preserving request order.
func (q Query) NormalizedCountries() []string {
	out := make([]string, 0, len(q.Countries))
	seen := make(map[string]struct{}, len(q.Countries))
	for _, c := range q.Countries {
		c = NormalizeCountry(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// TransformConfig controls cleaning and grouping.
type TransformConfig struct {
	Unit      TemperatureUnit
	Threshold *float64 // outlier threshold in standard deviations; nil disables
	Aggregate bool     // merge all selected countries into one label
}

// DefaultTransformConfig reports in Celsius with outlier detection disabled.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{Unit: Celsius}
}

// Diagnostics are the aggregate row counters of one run.
type Diagnostics struct {
	TotalRows       int `json:"total_rows"`
	MalformedDates  int `json:"malformed_dates"`
	MatchedRows     int `json:"matched_rows"`
	RejectedTemps   int `json:"rejected_temps"`
	Groups          int `json:"groups"`
	OutliersRemoved int `json:"outliers_removed"`
	EmptyGroups     int `json:"empty_groups"`
}
