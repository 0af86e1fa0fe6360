package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tidysurv/censored/pkg/telemetry"
)

// Config is the application configuration.
type Config struct {
	Telemetry telemetry.Config `yaml:"telemetry"`
	Store     StoreConfig      `yaml:"store"`
	Predict   PredictConfig    `yaml:"predict"`
	Args      ArgsConfig       `yaml:"args"`
}

// StoreConfig configures fitted model persistence.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps fits in memory.
	Path string `yaml:"path" validate:"required"`
}

// PredictConfig configures prediction.
type PredictConfig struct {
	// Workers bounds concurrent single-strength predictions when expanding
	// a penalty path. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0,lte=256"`
}

// ArgsConfig configures argument translation.
type ArgsConfig struct {
	// EvalTimeout limits each deferred argument expression.
	EvalTimeout time.Duration `yaml:"eval_timeout" validate:"gte=0"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Telemetry: *telemetry.DefaultConfig(),
		Store:     StoreConfig{Path: "censored.db"},
		Predict:   PredictConfig{Workers: 0},
		Args:      ArgsConfig{EvalTimeout: 5 * time.Second},
	}
}

var validate = validator.New()

// Validate checks struct constraints and the telemetry settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.Telemetry.Validate()
}
