package domain

import "strings"

// LocationFilter decides which country codes take part in a run and which
// label their observations are grouped under.
type LocationFilter struct {
	targets   map[string]struct{}
	aggregate bool
	label     string
}

// NewLocationFilter builds a filter for the query's countries. In aggregate
// mode every accepted row is labelled with LocationLabel(countries).
func NewLocationFilter(countries []string, aggregate bool) LocationFilter {
	f := LocationFilter{aggregate: aggregate}
	if len(countries) > 0 {
		f.targets = make(map[string]struct{}, len(countries))
		for _, c := range countries {
			f.targets[NormalizeCountry(c)] = struct{}{}
		}
	}
	if aggregate {
		f.label = LocationLabel(countries)
	}
	return f
}

// Match reports whether a normalized country code passes the filter.
func (f LocationFilter) Match(country string) bool {
	if f.targets == nil {
		return true
	}
	_, ok := f.targets[country]
	return ok
}

// Label returns the location label for a normalized country code.
func (f LocationFilter) Label(country string) string {
	if f.aggregate {
		return f.label
	}
	return country
}

// LocationLabel is the synthetic aggregate-mode label: the codes joined with
// "," in the given order, or AllLocationsLabel when there are none.
func LocationLabel(countries []string) string {
	if len(countries) == 0 {
		return AllLocationsLabel
	}
	return strings.Join(countries, ",")
}
