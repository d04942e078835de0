package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrosense/droughtcast/datasets"
)

// monthlyRun builds n consecutive monthly observations for one watershed,
// with ppt/tmax generated by the provided functions.
func monthlyRun(huc8 string, n int, ppt, tmax func(i int) float64) []datasets.Observation {
	obs := make([]datasets.Observation, n)
	year, month := 2015, 1
	for i := range obs {
		obs[i] = datasets.Observation{
			HUC8:  huc8,
			Year:  year,
			Month: month,
			PPT:   ppt(i),
			TMAX:  tmax(i),
			USDM:  float64(i % 5),
		}
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return obs
}

func TestNames_DefaultOrder(t *testing.T) {
	names := DefaultConfig().Names()
	require.Len(t, names, 20)

	want := []string{
		"ppt", "tmax",
		"ppt_lag1", "ppt_lag2", "ppt_lag3",
		"tmax_lag1", "tmax_lag2", "tmax_lag3",
		"ppt_roll6_mean", "ppt_roll6_var", "ppt_roll9_mean", "ppt_roll9_var",
		"tmax_roll6_mean", "tmax_roll6_var", "tmax_roll9_mean", "tmax_roll9_var",
		"month_sin", "month_cos", "year_sin", "year_cos",
	}
	assert.Equal(t, want, names)
}

func TestEngineer_DropsLeadingRows(t *testing.T) {
	obs := monthlyRun("07010101", 12, func(i int) float64 { return float64(i) }, func(i int) float64 { return 20 })

	set, err := Engineer(obs, DefaultConfig())
	require.NoError(t, err)

	// The largest window is 9, so the first 8 rows of the watershed are
	// incomplete and dropped.
	require.Len(t, set.X, 4)
	require.Len(t, set.Y, 4)
	require.Len(t, set.Kept, 4)
	assert.Equal(t, 9, set.Kept[0].Month)
}

func TestEngineer_LagValues(t *testing.T) {
	obs := monthlyRun("07010101", 10, func(i int) float64 { return float64(i * 10) }, func(i int) float64 { return float64(i) })

	set, err := Engineer(obs, DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, set.X)

	// First surviving row is index 8 of the run.
	row := set.X[0]
	assert.Equal(t, 80.0, row[0])            // ppt
	assert.Equal(t, 8.0, row[1])             // tmax
	assert.Equal(t, 70.0, row[2])            // ppt_lag1
	assert.Equal(t, 60.0, row[3])            // ppt_lag2
	assert.Equal(t, 50.0, row[4])            // ppt_lag3
	assert.Equal(t, 7.0, row[5])             // tmax_lag1
	assert.Equal(t, 6.0, row[6])             // tmax_lag2
	assert.Equal(t, 5.0, row[7])             // tmax_lag3
}

func TestEngineer_RollingStats(t *testing.T) {
	// Constant ppt: every rolling mean equals the constant, every rolling
	// variance is zero. tmax counts 1..n so the window stats are easy to
	// verify by hand.
	obs := monthlyRun("07010101", 9, func(i int) float64 { return 3.5 }, func(i int) float64 { return float64(i + 1) })

	set, err := Engineer(obs, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, set.X, 1)

	row := set.X[0]
	assert.InDelta(t, 3.5, row[8], 1e-12)  // ppt_roll6_mean
	assert.InDelta(t, 0.0, row[9], 1e-12)  // ppt_roll6_var
	assert.InDelta(t, 3.5, row[10], 1e-12) // ppt_roll9_mean
	assert.InDelta(t, 0.0, row[11], 1e-12) // ppt_roll9_var

	// tmax window 6 over 4..9: mean 6.5, sample variance 3.5.
	assert.InDelta(t, 6.5, row[12], 1e-12)
	assert.InDelta(t, 3.5, row[13], 1e-12)
	// tmax window 9 over 1..9: mean 5, sample variance 7.5.
	assert.InDelta(t, 5.0, row[14], 1e-12)
	assert.InDelta(t, 7.5, row[15], 1e-12)
}

func TestEngineer_CyclicalEncodings(t *testing.T) {
	// December: month angle is 2*pi, so sin 0 and cos 1.
	obs := monthlyRun("07010101", 12, func(i int) float64 { return 1 }, func(i int) float64 { return 1 })

	set, err := Engineer(obs, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, set.Kept, 4)

	for i, o := range set.Kept {
		row := set.X[i]
		if o.Month == 12 {
			assert.InDelta(t, 0.0, row[16], 1e-12, "month_sin for December")
			assert.InDelta(t, 1.0, row[17], 1e-12, "month_cos for December")
		}
		wantSin := math.Sin(2 * math.Pi * float64(o.Year) / 365)
		assert.InDelta(t, wantSin, row[18], 1e-12)
	}
}

func TestCyclical_March(t *testing.T) {
	// March sits a quarter through the year: sin 1, cos 0.
	v := cyclical(datasets.Observation{Year: 2015, Month: 3})
	require.Len(t, v, 4)
	assert.InDelta(t, 1.0, v[0], 1e-12)
	assert.InDelta(t, 0.0, v[1], 1e-12)
}

func TestEngineer_GroupsAreIndependent(t *testing.T) {
	a := monthlyRun("01010101", 9, func(i int) float64 { return float64(i) }, func(i int) float64 { return 1 })
	b := monthlyRun("02020202", 9, func(i int) float64 { return float64(100 + i) }, func(i int) float64 { return 1 })
	obs := append(a, b...)

	set, err := Engineer(obs, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, set.Kept, 2)

	// Each watershed drops its own leading 8 rows; lags never cross the
	// group boundary.
	assert.Equal(t, "01010101", set.Kept[0].HUC8)
	assert.Equal(t, "02020202", set.Kept[1].HUC8)
	assert.Equal(t, 107.0, set.X[1][2]) // ppt_lag1 inside the second group
}

func TestEngineer_InvalidConfig(t *testing.T) {
	obs := monthlyRun("07010101", 12, func(i int) float64 { return 1 }, func(i int) float64 { return 1 })

	_, err := Engineer(obs, Config{Lags: []int{0}, Windows: []int{6}})
	require.Error(t, err)

	_, err = Engineer(obs, Config{Lags: []int{1}, Windows: []int{1}})
	require.Error(t, err)
}

func TestEngineer_Empty(t *testing.T) {
	set, err := Engineer(nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, set.X)
	assert.Empty(t, set.Y)
}
