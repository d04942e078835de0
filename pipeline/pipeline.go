// Package pipeline runs the four stages of a droughtcast batch job
// strictly forward: load/filter, feature engineering, training, and
// evaluation with artifact persistence. No stage is revisited and no
// state is shared beyond each stage's output.
package pipeline

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/hydrosense/droughtcast/config"
	"github.com/hydrosense/droughtcast/datasets"
	"github.com/hydrosense/droughtcast/features"
	"github.com/hydrosense/droughtcast/metrics"
	"github.com/hydrosense/droughtcast/rnn"
)

// InsufficientDataError reports that too few rows survived the year
// filter and completeness filter to form train/validation/test
// partitions.
type InsufficientDataError struct {
	Rows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d retained rows cannot form train/validation/test partitions", e.Rows)
}

// Result summarizes a completed run.
type Result struct {
	Report     metrics.Report
	Rows       int
	Watersheds int
	TrainN     int
	TestN      int
	EpochsRun  int
	ModelPath  string
}

// Pipeline executes one batch run under a fixed configuration.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Run executes load → engineer → train → evaluate and persists the
// trained artifact.
func (p *Pipeline) Run() (*Result, error) {
	cfg := p.cfg

	ds, err := datasets.Load(cfg.Data.Path, cfg.Data.YearMin, cfg.Data.YearMax)
	if err != nil {
		return nil, err
	}
	p.logger.Info("dataset loaded",
		"path", cfg.Data.Path,
		"rows", ds.Len(),
		"watersheds", len(ds.Watersheds()),
		"year_min", cfg.Data.YearMin,
		"year_max", cfg.Data.YearMax)

	featCfg := features.Config{Lags: cfg.Features.Lags, Windows: cfg.Features.Windows}
	set, err := features.Engineer(ds.Observations(), featCfg)
	if err != nil {
		return nil, errors.Wrap(err, "engineer features")
	}
	n := len(set.X)
	p.logger.Info("features engineered",
		"retained", n,
		"dropped", ds.Len()-n,
		"features", len(set.Names))

	trainIdx, testIdx := splitIndices(n, cfg.Training.TestSplit, cfg.Training.SplitSeed)
	if err := checkPartitions(n, len(trainIdx), len(testIdx), cfg.Training.ValidationSplit); err != nil {
		return nil, err
	}

	scaler := &features.StandardScaler{}
	scaled, err := scaler.FitTransform(set.X)
	if err != nil {
		return nil, errors.Wrap(err, "scale features")
	}
	seqs := datasets.SingleStepSequences(scaled)

	trainDS, err := datasets.NewSequenceDataset(
		subsetSequences(seqs, trainIdx),
		subsetTargets(set.Y, trainIdx),
		cfg.Training.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "build training dataset")
	}

	model, err := rnn.NewModel(rnn.Config{
		RecurrentSizes:  cfg.Training.RecurrentSizes,
		DenseSize:       cfg.Training.DenseSize,
		Dropout:         cfg.Training.Dropout,
		LearningRate:    cfg.Training.LearningRate,
		Epochs:          cfg.Training.Epochs,
		BatchSize:       cfg.Training.BatchSize,
		ValidationSplit: cfg.Training.ValidationSplit,
		Patience:        cfg.Training.Patience,
		Seed:            cfg.Training.Seed,
		Optimizer:       cfg.Training.Optimizer,
		Beta1:           cfg.Training.AdamBeta1,
		Beta2:           cfg.Training.AdamBeta2,
		Epsilon:         cfg.Training.AdamEps,
		ClipNorm:        cfg.Training.ClipNorm,
	}, len(set.Names))
	if err != nil {
		return nil, err
	}

	p.logger.Info("training started",
		"train", len(trainIdx),
		"test", len(testIdx),
		"epoch_cap", cfg.Training.Epochs,
		"batch_size", cfg.Training.BatchSize)
	if err := model.Fit(trainDS); err != nil {
		return nil, err
	}
	hist := model.History()
	p.logger.Info("training finished",
		"epochs_run", len(hist.TrainLoss),
		"best_epoch", hist.BestEpoch,
		"stopped_early", hist.StoppedEarly)

	preds, err := model.Predict(subsetSequences(seqs, testIdx))
	if err != nil {
		return nil, errors.Wrap(err, "predict test partition")
	}
	report, err := metrics.Evaluate(subsetTargets(set.Y, testIdx), preds)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate")
	}

	if err := rnn.SaveArtifact(cfg.Output.ModelPath, model, scaler, set.Names); err != nil {
		return nil, errors.Wrap(err, "save model artifact")
	}
	p.logger.Info("model artifact saved", "path", cfg.Output.ModelPath)

	return &Result{
		Report:     report,
		Rows:       n,
		Watersheds: len(ds.Watersheds()),
		TrainN:     len(trainIdx),
		TestN:      len(testIdx),
		EpochsRun:  len(hist.TrainLoss),
		ModelPath:  cfg.Output.ModelPath,
	}, nil
}

// splitIndices partitions [0, n) into train and test index sets by a
// seeded shuffle; testFrac of the examples land in the test partition.
func splitIndices(n int, testFrac float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(float64(n) * testFrac)
	return perm[nTest:], perm[:nTest]
}

// checkPartitions verifies every partition the run needs is non-empty.
func checkPartitions(n, trainN, testN int, valSplit float64) error {
	valN := int(float64(trainN) * valSplit)
	if n == 0 || testN < 1 || trainN-valN < 1 || (valSplit > 0 && valN < 1) {
		return &InsufficientDataError{Rows: n}
	}
	return nil
}

func subsetSequences(seqs [][][]float64, indices []int) [][][]float64 {
	out := make([][][]float64, len(indices))
	for i, idx := range indices {
		out[i] = seqs[idx]
	}
	return out
}

func subsetTargets(y []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}
