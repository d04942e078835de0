package rnn

import "fmt"

// TrainingDivergedError reports a non-finite loss observed during
// training, usually caused by bad inputs or a runaway learning rate.
type TrainingDivergedError struct {
	Epoch int
	Loss  float64
}

func (e *TrainingDivergedError) Error() string {
	return fmt.Sprintf("training diverged at epoch %d: loss is %v", e.Epoch, e.Loss)
}
