package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hydrosense/droughtcast/config"
	"github.com/hydrosense/droughtcast/datasets"
	"github.com/hydrosense/droughtcast/pipeline"
	"github.com/hydrosense/droughtcast/rnn"
)

func main() {
	// CLI flags; zero values mean "keep the config file / default value".
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	dataPath := flag.String("data", "", "path to the input CSV (overrides config)")
	modelPath := flag.String("model", "", "path for the saved model artifact (overrides config)")
	yearMin := flag.Int("year-min", 0, "lower bound of the retained year range (overrides config)")
	yearMax := flag.Int("year-max", 0, "upper bound of the retained year range (overrides config)")
	epochs := flag.Int("epochs", 0, "training epoch cap (overrides config)")
	batchSize := flag.Int("batch-size", 0, "training batch size (overrides config)")
	learningRate := flag.Float64("learning-rate", 0, "optimizer learning rate (overrides config)")
	patience := flag.Int("patience", 0, "early-stopping patience in epochs (overrides config)")
	testSplit := flag.Float64("test-split", 0, "fraction of examples held out for evaluation (overrides config)")
	seed := flag.Int64("seed", 0, "weight init / shuffle / dropout seed (overrides config)")
	splitSeed := flag.Int64("split-seed", 0, "train/test split seed (overrides config)")
	flag.Parse()

	// A .env file is optional; environment overrides are read by config.Load.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "droughtcast: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *dataPath, *modelPath, *yearMin, *yearMax, *epochs, *batchSize, *learningRate, *patience, *testSplit, *seed, *splitSeed)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "droughtcast: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.System)

	result, err := pipeline.New(cfg, logger).Run()
	if err != nil {
		fatal(logger, err)
	}

	for _, line := range result.Report.Lines() {
		fmt.Println(line)
	}
	logger.Info("run complete",
		"rows", result.Rows,
		"watersheds", result.Watersheds,
		"train", result.TrainN,
		"test", result.TestN,
		"epochs_run", result.EpochsRun,
		"model", result.ModelPath)
}

func applyFlags(cfg *config.Config, dataPath, modelPath string, yearMin, yearMax, epochs, batchSize int,
	learningRate float64, patience int, testSplit float64, seed, splitSeed int64) {
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if modelPath != "" {
		cfg.Output.ModelPath = modelPath
	}
	if yearMin != 0 {
		cfg.Data.YearMin = yearMin
	}
	if yearMax != 0 {
		cfg.Data.YearMax = yearMax
	}
	if epochs != 0 {
		cfg.Training.Epochs = epochs
	}
	if batchSize != 0 {
		cfg.Training.BatchSize = batchSize
	}
	if learningRate != 0 {
		cfg.Training.LearningRate = learningRate
	}
	if patience != 0 {
		cfg.Training.Patience = patience
	}
	if testSplit != 0 {
		cfg.Training.TestSplit = testSplit
	}
	if seed != 0 {
		cfg.Training.Seed = seed
	}
	if splitSeed != 0 {
		cfg.Training.SplitSeed = splitSeed
	}
}

func newLogger(sys config.SystemConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(sys.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(sys.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// fatal logs the failure with a message matched to its kind and exits.
func fatal(logger *slog.Logger, err error) {
	var schemaErr *datasets.SchemaError
	var insufficientErr *pipeline.InsufficientDataError
	var divergedErr *rnn.TrainingDivergedError
	switch {
	case errors.As(err, &schemaErr):
		logger.Error("input schema invalid", "missing", schemaErr.Missing)
	case errors.As(err, &insufficientErr):
		logger.Error("not enough data to train", "retained_rows", insufficientErr.Rows)
	case errors.As(err, &divergedErr):
		logger.Error("training diverged", "epoch", divergedErr.Epoch, "loss", divergedErr.Loss)
	default:
		logger.Error("run failed", "error", err)
	}
	os.Exit(1)
}
