package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. YAML file (explicit path, CENSORED_CONFIG env, ./censored.yaml)
//  3. CENSORED_* environment overrides
//  4. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("CENSORED_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("censored.yaml"); err == nil {
		return "censored.yaml"
	}
	return ""
}

// loadYAMLFile overlays a YAML file. Absent fields keep their defaults.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CENSORED_LOG_LEVEL"); v != "" {
		cfg.Telemetry.Logging.Level = v
	}
	if v := os.Getenv("CENSORED_LOG_FORMAT"); v != "" {
		cfg.Telemetry.Logging.Format = v
	}
	if v := os.Getenv("CENSORED_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CENSORED_PREDICT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CENSORED_PREDICT_WORKERS: %w", err)
		}
		cfg.Predict.Workers = n
	}
	if v := os.Getenv("CENSORED_EVAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CENSORED_EVAL_TIMEOUT: %w", err)
		}
		cfg.Args.EvalTimeout = d
	}
	if v := os.Getenv("CENSORED_TRACING_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
		cfg.Telemetry.Tracing.Enabled = v != "none"
	}
	if v := os.Getenv("CENSORED_TRACING_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv("CENSORED_METRICS_TEXTFILE"); v != "" {
		cfg.Telemetry.Metrics.TextfilePath = v
	}
	return nil
}
