// Package metrics computes the regression accuracy summary reported at
// the end of a training run.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Report holds the five summary statistics for a set of predictions
// against held-out actuals.
type Report struct {
	MSE     float64
	RMSE    float64
	MAE     float64
	R2      float64
	Pearson float64
}

// Evaluate computes the report for aligned actual/predicted values.
func Evaluate(actual, predicted []float64) (Report, error) {
	if len(actual) == 0 {
		return Report{}, fmt.Errorf("no values to evaluate")
	}
	if len(actual) != len(predicted) {
		return Report{}, fmt.Errorf("actual and predicted lengths don't match: %d != %d", len(actual), len(predicted))
	}

	var sqSum, absSum float64
	for i, a := range actual {
		diff := predicted[i] - a
		sqSum += diff * diff
		absSum += math.Abs(diff)
	}
	n := float64(len(actual))

	r := Report{
		MSE: sqSum / n,
		MAE: absSum / n,
	}
	r.RMSE = math.Sqrt(r.MSE)

	mean := stat.Mean(actual, nil)
	var totSum float64
	for _, a := range actual {
		d := a - mean
		totSum += d * d
	}
	if totSum == 0 {
		// Constant actuals: coefficient of determination is undefined;
		// report 0 rather than a NaN.
		r.R2 = 0
	} else {
		r.R2 = 1 - sqSum/totSum
	}

	r.Pearson = stat.Correlation(actual, predicted, nil)

	return r, nil
}

// Lines returns the labeled console lines in reporting order.
func (r Report) Lines() []string {
	return []string{
		fmt.Sprintf("MSE: %.6f", r.MSE),
		fmt.Sprintf("RMSE: %.6f", r.RMSE),
		fmt.Sprintf("MAE: %.6f", r.MAE),
		fmt.Sprintf("R² Score: %.6f", r.R2),
		fmt.Sprintf("Pearson Correlation (R): %.6f", r.Pearson),
	}
}
