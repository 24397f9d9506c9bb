package domain

import (
	"math"
	"slices"
)

// SummaryPercentiles are the percentiles reported on every SummaryRecord.
var SummaryPercentiles = [...]float64{25, 75, 90, 95}

// Summarize computes the summary record for one group. values must be
// non-empty, already converted and outlier-filtered; it is not modified.
// An empty slice is a caller bug and panics.
func Summarize(key GroupKey, values []float64) SummaryRecord {
	if len(values) == 0 {
		panic("domain: Summarize called with no values for " + key.String())
	}

	minTemp, maxTemp := bounds(values)

	mean, stdDev := meanStdDev(values)

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return SummaryRecord{
		Country:      key.Label,
		Year:         key.Year,
		Month:        key.Month,
		Count:        len(values),
		AvgTemp:      mean,
		MinTemp:      minTemp,
		MaxTemp:      maxTemp,
		StdDev:       stdDev,
		MedianTemp:   Median(sorted),
		Percentile25: Percentile(sorted, SummaryPercentiles[0]),
		Percentile75: Percentile(sorted, SummaryPercentiles[1]),
		Percentile90: Percentile(sorted, SummaryPercentiles[2]),
		Percentile95: Percentile(sorted, SummaryPercentiles[3]),
	}
}

// meanStdDev returns the arithmetic mean Σx/n and the sample standard
// deviation sqrt(Σ(x-mean)²/(n-1)), summed in input order. The deviation is
// 0 for a single value.
//
// No compensation term is applied: for a constant group whose mean is off by
// one ULP the deviation stays a tiny positive number that still covers every
// value, so the outlier filter never empties such a group.
func meanStdDev(values []float64) (mean, stdDev float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n
	if len(values) < 2 {
		return mean, 0
	}

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// bounds returns the extrema with a single linear scan.
func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Median returns the middle of an ascending slice, averaging the two middle
// elements when the length is even. Returns 0 for an empty slice.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// Percentile returns the p-th percentile (0-100) of an ascending slice using
// linear interpolation between the two closest ranks:
//
//	idx = p/100 * (n-1)
//	sorted[floor(idx)]*(1-frac) + sorted[ceil(idx)]*frac
//
// This is NumPy's default "linear" method, not nearest-rank. Returns 0 for an
// empty slice.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	frac := index - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
