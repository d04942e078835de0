// Package config holds the run configuration: input data selection,
// feature engineering parameters, training hyperparameters and output
// locations. Values come from defaults, an optional YAML file, a few
// environment variables, and CLI flag overrides, in that order.
package config

import (
	"github.com/pkg/errors"
)

// DataConfig selects and filters the input table.
type DataConfig struct {
	// Path to the input CSV.
	Path string `yaml:"path"`
	// YearMin/YearMax bound the retained years (closed interval).
	YearMin int `yaml:"year_min"`
	YearMax int `yaml:"year_max"`
}

// FeatureConfig mirrors features.Config.
type FeatureConfig struct {
	Lags    []int `yaml:"lags"`
	Windows []int `yaml:"windows"`
}

// TrainingConfig holds the split and optimizer settings.
type TrainingConfig struct {
	// TestSplit is the fraction of examples held out for evaluation.
	TestSplit float64 `yaml:"test_split"`
	// SplitSeed drives the train/test shuffle.
	SplitSeed int64 `yaml:"split_seed"`

	RecurrentSizes  []int   `yaml:"recurrent_sizes"`
	DenseSize       int     `yaml:"dense_size"`
	Dropout         float64 `yaml:"dropout"`
	LearningRate    float64 `yaml:"learning_rate"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
	Patience        int     `yaml:"patience"`
	// Seed drives weight init, shuffling and dropout.
	Seed      int64   `yaml:"seed"`
	Optimizer string  `yaml:"optimizer"`
	AdamBeta1 float64 `yaml:"adam_beta1"`
	AdamBeta2 float64 `yaml:"adam_beta2"`
	AdamEps   float64 `yaml:"adam_eps"`
	ClipNorm  float64 `yaml:"clip_norm"`
}

// OutputConfig controls where the trained artifact lands.
type OutputConfig struct {
	ModelPath string `yaml:"model_path"`
}

// SystemConfig controls logging.
type SystemConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Config is the full run configuration.
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Features FeatureConfig  `yaml:"features"`
	Training TrainingConfig `yaml:"training"`
	Output   OutputConfig   `yaml:"output"`
	System   SystemConfig   `yaml:"system"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Path:    "data/drought.csv",
			YearMin: 2012,
			YearMax: 2019,
		},
		Features: FeatureConfig{
			Lags:    []int{1, 2, 3},
			Windows: []int{6, 9},
		},
		Training: TrainingConfig{
			TestSplit:       0.2,
			SplitSeed:       42,
			RecurrentSizes:  []int{64, 32},
			DenseSize:       16,
			Dropout:         0.3,
			LearningRate:    0.001,
			Epochs:          50,
			BatchSize:       32,
			ValidationSplit: 0.1,
			Patience:        10,
			Seed:            42,
			Optimizer:       "adam",
			AdamBeta1:       0.9,
			AdamBeta2:       0.999,
			AdamEps:         1e-8,
			ClipNorm:        0,
		},
		Output: OutputConfig{
			ModelPath: "output/droughtcast.model",
		},
		System: SystemConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Validate checks cross-field constraints before a run starts.
func (c *Config) Validate() error {
	if c.Data.Path == "" {
		return errors.New("data.path is required")
	}
	if c.Data.YearMin > c.Data.YearMax {
		return errors.Errorf("data.year_min %d exceeds data.year_max %d", c.Data.YearMin, c.Data.YearMax)
	}
	if c.Training.TestSplit <= 0 || c.Training.TestSplit >= 1 {
		return errors.Errorf("training.test_split %v outside (0, 1)", c.Training.TestSplit)
	}
	if c.Training.ValidationSplit < 0 || c.Training.ValidationSplit >= 1 {
		return errors.Errorf("training.validation_split %v outside [0, 1)", c.Training.ValidationSplit)
	}
	if c.Training.Epochs <= 0 {
		return errors.New("training.epochs must be positive")
	}
	if c.Training.BatchSize <= 0 {
		return errors.New("training.batch_size must be positive")
	}
	if c.Output.ModelPath == "" {
		return errors.New("output.model_path is required")
	}
	return nil
}
