package domain

import "math"

// FilterOutliers drops values further than threshold sample standard
// deviations from the sample mean. A nil threshold disables filtering.
// Retained values keep their input order; the input slice is not modified.
//
// Common thresholds: 1.0 drops roughly a third of normally distributed data,
// 2.0 about 5%, 3.0 about 0.3%.
func FilterOutliers(values []float64, threshold *float64) []float64 {
	if threshold == nil || len(values) < 2 {
		return values
	}

	mean, stdDev := meanStdDev(values)
	limit := *threshold * stdDev

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if math.Abs(v-mean) <= limit {
			kept = append(kept, v)
		}
	}
	return kept
}
