package domain

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestFilterOutliers_Disabled(t *testing.T) {
	in := []float64{1, 2, 3, 4, 100}
	assert.Equal(t, in, FilterOutliers(in, nil))
}

func TestFilterOutliers_ShortInputUnchanged(t *testing.T) {
	assert.Equal(t, []float64{42}, FilterOutliers([]float64{42}, ptr(0.5)))
	assert.Empty(t, FilterOutliers([]float64{}, ptr(1)))
	assert.Nil(t, FilterOutliers(nil, ptr(1)))
}

func TestFilterOutliers_RemovesFarValue(t *testing.T) {
	// mean 22, sample std dev ~43.6; |100-22| = 78 exceeds one std dev.
	out := FilterOutliers([]float64{1, 2, 3, 4, 100}, ptr(1.0))
	assert.Equal(t, []float64{1, 2, 3, 4}, out)
}

func TestFilterOutliers_PreservesOrder(t *testing.T) {
	out := FilterOutliers([]float64{4, -90, 3, 1, 2}, ptr(1.5))
	assert.Equal(t, []float64{4, 3, 1, 2}, out)
}

func TestFilterOutliers_PairAlwaysWithinOneStdDev(t *testing.T) {
	// With two values each sits std/sqrt(2) from the mean.
	assert.Equal(t, []float64{-3, 9}, FilterOutliers([]float64{-3, 9}, ptr(1.0)))
	assert.Empty(t, FilterOutliers([]float64{-3, 9}, ptr(0.5)))
}

func TestFilterOutliers_DoesNotMutateInput(t *testing.T) {
	in := []float64{10, 11, 12, 500}
	snapshot := append([]float64(nil), in...)
	_ = FilterOutliers(in, ptr(1))
	assert.Equal(t, snapshot, in)
}

func TestFilterOutliers_LargeThresholdKeepsAll(t *testing.T) {
	in := []float64{-5, 0, 5, 10, 40}
	assert.Equal(t, in, FilterOutliers(in, ptr(10)))
}

func TestFilterOutliers_ConstantGroupKept(t *testing.T) {
	in := []float64{0.1, 0.1, 0.1}
	assert.Equal(t, in, FilterOutliers(in, ptr(1)))
	assert.Equal(t, in, FilterOutliers(in, ptr(3)))
}

func TestFilterOutliers_ConstantGroupsAcrossUnits(t *testing.T) {
	bases := []float64{0.1, 0.7, 1.1, 12.3, -3.3, 21.7, 36.6}
	for _, unit := range []TemperatureUnit{Celsius, Fahrenheit, Kelvin} {
		for _, base := range bases {
			v, ok := ConvertTemperature(base, unit)
			require.True(t, ok)
			for n := 2; n <= 40; n++ {
				in := slices.Repeat([]float64{v}, n)
				for _, thr := range []float64{1, 3} {
					assert.Len(t, FilterOutliers(in, ptr(thr)), n,
						"%s base=%g n=%d threshold=%g", unit, base, n, thr)
				}
			}
		}
	}
}
