package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardizes features to zero mean and unit variance.
// Fit computes per-column statistics once over the full retained matrix;
// Transform applies them, so the same fitted transform serves training
// and later inference. Fields are exported so the fitted state travels
// inside the persisted model artifact.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes the per-column mean and standard deviation. Columns with
// zero spread scale by 1 so constant features pass through centered.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 {
		return fmt.Errorf("cannot fit scaler on an empty matrix")
	}
	dim := len(x[0])
	s.Mean = make([]float64, dim)
	s.Std = make([]float64, dim)

	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i, row := range x {
			if len(row) != dim {
				return fmt.Errorf("row %d has %d columns, expected %d", i, len(row), dim)
			}
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		std := stat.StdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Std[j] = std
	}
	return nil
}

// Transform returns a standardized copy of x using the fitted statistics.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("scaler has not been fitted")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d columns, scaler expects %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler and returns the standardized matrix.
func (s *StandardScaler) FitTransform(x [][]float64) ([][]float64, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
