package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "data/drought.csv", cfg.Data.Path)
	assert.Equal(t, 2012, cfg.Data.YearMin)
	assert.Equal(t, 2019, cfg.Data.YearMax)
	assert.Equal(t, []int{64, 32}, cfg.Training.RecurrentSizes)
	assert.Equal(t, "adam", cfg.Training.Optimizer)
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data path", func(c *Config) { c.Data.Path = "" }},
		{"inverted year range", func(c *Config) { c.Data.YearMin = 2020; c.Data.YearMax = 2012 }},
		{"test split zero", func(c *Config) { c.Training.TestSplit = 0 }},
		{"test split one", func(c *Config) { c.Training.TestSplit = 1 }},
		{"negative validation split", func(c *Config) { c.Training.ValidationSplit = -0.1 }},
		{"zero epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"zero batch size", func(c *Config) { c.Training.BatchSize = 0 }},
		{"empty model path", func(c *Config) { c.Output.ModelPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
data:
  path: /tmp/custom.csv
  year_min: 2014
  year_max: 2018
training:
  epochs: 5
  seed: 7
output:
  model_path: /tmp/custom.model
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.csv", cfg.Data.Path)
	assert.Equal(t, 2014, cfg.Data.YearMin)
	assert.Equal(t, 2018, cfg.Data.YearMax)
	assert.Equal(t, 5, cfg.Training.Epochs)
	assert.Equal(t, int64(7), cfg.Training.Seed)
	assert.Equal(t, "/tmp/custom.model", cfg.Output.ModelPath)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 0.2, cfg.Training.TestSplit)
	assert.Equal(t, []int{6, 9}, cfg.Features.Windows)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DROUGHTCAST_DATA_PATH", "/env/data.csv")
	t.Setenv("DROUGHTCAST_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/data.csv", cfg.Data.Path)
	assert.Equal(t, "json", cfg.System.LogFormat)
	assert.Equal(t, "info", cfg.System.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data: [unclosed"), 0644))
	_, err = Load(path)
	require.Error(t, err)

	// A file that parses but fails validation is rejected.
	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  epochs: -1\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)
}
