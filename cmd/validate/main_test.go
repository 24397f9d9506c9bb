package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

const inputCSV = `date,country_alpha2,temp_mean_c_approx
2020-01-01,FR,0
2020-01-02,FR,10
2020-01-03,fr,20
2020-01-04,FR,30
2020-02-01,US,5
2020-02-31,US,99
2020-02-02,US,150
`

func validRecords() []domain.SummaryRecord {
	return []domain.SummaryRecord{
		domain.Summarize(domain.GroupKey{Label: "FR", Year: 2020, Month: 1}, []float64{0, 10, 20, 30}),
		domain.Summarize(domain.GroupKey{Label: "US", Year: 2020, Month: 2}, []float64{5}),
	}
}

func TestValidateRecordInvariants(t *testing.T) {
	assert.True(t, validateRecordInvariants(validRecords()).passed())

	bad := validRecords()
	bad[0].Percentile90 = bad[0].MaxTemp + 1
	bad[1].StdDev = 0.5
	p := validateRecordInvariants(bad)
	assert.Len(t, p.errors, 2)
}

func TestValidateOrdering(t *testing.T) {
	assert.True(t, validateOrdering(validRecords()).passed())

	recs := validRecords()
	recs[0], recs[1] = recs[1], recs[0]
	assert.False(t, validateOrdering(recs).passed())

	dup := append(validRecords(), validRecords()[1])
	assert.False(t, validateOrdering(dup).passed())
}

func TestValidateRecomputation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, os.WriteFile(path, []byte(inputCSV), 0o600))

	q := domain.Query{StartYear: 2020, EndYear: 2020}
	groups, err := loadGroups(path, q, domain.DefaultTransformConfig())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.True(t, validateRecomputation(validRecords(), groups, nil).passed())

	wrong := validRecords()
	wrong[0].AvgTemp = 16
	p := validateRecomputation(wrong, groups, nil)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "avg_temp")

	missing := validRecords()[:1]
	p = validateRecomputation(missing, groups, nil)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "missing from summary")
}

func TestValidateRecomputation_ConstantGroup(t *testing.T) {
	key := domain.GroupKey{Label: "FR", Year: 2020, Month: 3}
	values := []float64{0.1, 0.1, 0.1}
	groups := map[domain.GroupKey][]float64{key: values}
	thr := 1.0

	records := []domain.SummaryRecord{domain.Summarize(key, domain.FilterOutliers(values, &thr))}
	assert.True(t, validateRecomputation(records, groups, &thr).passed())
}
