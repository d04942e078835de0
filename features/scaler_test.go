package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	x := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	}

	var s StandardScaler
	out, err := s.FitTransform(x)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.InDelta(t, 2.0, s.Mean[0], 1e-12)
	assert.InDelta(t, 20.0, s.Mean[1], 1e-12)

	// Column means of the transformed matrix are zero.
	for j := 0; j < 2; j++ {
		sum := 0.0
		for _, row := range out {
			sum += row[j]
		}
		assert.InDelta(t, 0.0, sum/3, 1e-12)
	}
	// The middle row sits exactly on the mean.
	assert.InDelta(t, 0.0, out[1][0], 1e-12)
	assert.InDelta(t, 0.0, out[1][1], 1e-12)

	// Inputs are untouched.
	assert.Equal(t, 1.0, x[0][0])
}

func TestStandardScaler_ConstantColumn(t *testing.T) {
	x := [][]float64{
		{5, 1},
		{5, 2},
		{5, 3},
	}

	var s StandardScaler
	out, err := s.FitTransform(x)
	require.NoError(t, err)

	// Zero spread scales by 1, leaving the column centered at zero.
	assert.Equal(t, 1.0, s.Std[0])
	for _, row := range out {
		assert.InDelta(t, 0.0, row[0], 1e-12)
	}
}

func TestStandardScaler_SingleRow(t *testing.T) {
	var s StandardScaler
	out, err := s.FitTransform([][]float64{{4, 7}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, out[0])
}

func TestStandardScaler_Errors(t *testing.T) {
	var s StandardScaler
	require.Error(t, s.Fit(nil))

	_, err := s.Transform([][]float64{{1}})
	require.Error(t, err, "transform before fit")

	require.NoError(t, s.Fit([][]float64{{1, 2}, {3, 4}}))
	_, err = s.Transform([][]float64{{1, 2, 3}})
	require.Error(t, err, "column mismatch")

	require.Error(t, s.Fit([][]float64{{1, 2}, {3}}), "ragged matrix")
}
