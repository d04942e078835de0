package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, then the YAML file at path (if
// non-empty), then environment variable overrides. The result is
// validated before return.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides the file-level settings commonly varied between
// deployments without editing the config file.
func applyEnv(cfg *Config) {
	cfg.Data.Path = envOrDefault("DROUGHTCAST_DATA_PATH", cfg.Data.Path)
	cfg.Output.ModelPath = envOrDefault("DROUGHTCAST_MODEL_PATH", cfg.Output.ModelPath)
	cfg.System.LogLevel = envOrDefault("DROUGHTCAST_LOG_LEVEL", cfg.System.LogLevel)
	cfg.System.LogFormat = envOrDefault("DROUGHTCAST_LOG_FORMAT", cfg.System.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
