// Package domain models daily weather observations and the monthly climate
// summaries derived from them.
//
// # Data Source
//
// Observations are daily country-level temperature means, one row per
// country per day. The columnar extract carries three fields:
//
//	date                "YYYY-MM-DD", e.g. "2021-07-14"
//	country_alpha2      ISO 3166-1 alpha-2 code, e.g. "FR"
//	temp_mean_c_approx  daily mean temperature in degrees Celsius
//
// Rows whose date does not parse are dropped without error. Country codes are
// trimmed and upper-cased before filtering and grouping, so "fr" and "FR"
// contribute to the same bucket.
//
// # Cleaning
//
// A temperature is accepted when it is finite and inside [-100, 70] °C, which
// covers every recorded surface extreme from Vostok Station to Death Valley.
// Accepted values are converted to the requested [TemperatureUnit] before any
// statistic is computed, so every figure in a [SummaryRecord] is in that unit.
//
// # Grouping
//
// Values are bucketed by (location label, year, month). The location label is
// the country code, or in aggregate mode a single synthetic label: the
// requested codes joined with "," (e.g. "US,FR"), or "ALL" when no codes were
// requested. See [LocationLabel].
//
// # Statistics
//
// Outliers are removed per bucket with a standard-deviation rule
// ([FilterOutliers]). The survivors are summarized by [Summarize]: count, mean,
// extrema, sample standard deviation (Bessel's correction), median, and the
// 25th/75th/90th/95th percentiles using linear interpolation between closest
// ranks, the same method as NumPy's default.
//
// # Run IDs
//
// A [Run] carries a deterministic ID derived from the query, transform
// configuration and generation time. Downstream SQL sinks upsert on
// (run_id, country, year, month), so replaying a run is idempotent.
package domain
