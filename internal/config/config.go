package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values for the engine configuration.
const (
	DefaultSigmaMultiplier   = 3.0
	DefaultWarningMultiplier = 2.0
	DefaultMetric            = "scale_measurement"
)

// DefaultScopeLabels is the label set a scope key is built from, in order.
var DefaultScopeLabels = []string{"instrument", "workstation", "technician"}

// Config holds the full configuration parsed from config.yaml.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Ingest IngestConfig `yaml:"ingest"`
}

// EngineConfig holds the control-limit parameters.
type EngineConfig struct {
	// SigmaMultiplier is the number of standard deviations defining the
	// control band (default 3).
	SigmaMultiplier float64 `yaml:"sigma_multiplier"`

	// WarningMultiplier places the warning band inside the control band
	// (default 2). Must be smaller than SigmaMultiplier.
	WarningMultiplier float64 `yaml:"warning_multiplier"`

	// WarningsEnabled toggles the warning band. When false, points are only
	// ever in control or out of control.
	WarningsEnabled bool `yaml:"warnings_enabled"`
}

// EffectiveWarningMultiplier returns the warning multiplier to hand to the
// limit deriver: 0 when the warning band is disabled.
func (e EngineConfig) EffectiveWarningMultiplier() float64 {
	if !e.WarningsEnabled {
		return 0
	}
	return e.WarningMultiplier
}

// IngestConfig controls how measurements are read from exposition-format input.
type IngestConfig struct {
	// Metric is the metric family name whose samples are treated as
	// measurements (default "scale_measurement").
	Metric string `yaml:"metric"`

	// ScopeLabels are the label names, in order, joined with ":" to build
	// the scope key. Defaults to instrument, workstation, technician.
	ScopeLabels []string `yaml:"scope_labels"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			SigmaMultiplier:   DefaultSigmaMultiplier,
			WarningMultiplier: DefaultWarningMultiplier,
			WarningsEnabled:   true,
		},
		Ingest: IngestConfig{
			Metric:      DefaultMetric,
			ScopeLabels: append([]string(nil), DefaultScopeLabels...),
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Engine.SigmaMultiplier <= 0 {
		return fmt.Errorf("engine.sigma_multiplier %v must be > 0", cfg.Engine.SigmaMultiplier)
	}
	if cfg.Engine.WarningsEnabled {
		if cfg.Engine.WarningMultiplier <= 0 {
			return fmt.Errorf("engine.warning_multiplier %v must be > 0 when warnings are enabled",
				cfg.Engine.WarningMultiplier)
		}
		if cfg.Engine.WarningMultiplier >= cfg.Engine.SigmaMultiplier {
			return fmt.Errorf("engine.warning_multiplier %v must be smaller than engine.sigma_multiplier %v",
				cfg.Engine.WarningMultiplier, cfg.Engine.SigmaMultiplier)
		}
	}
	if cfg.Ingest.Metric == "" {
		return fmt.Errorf("ingest.metric must not be empty")
	}
	if len(cfg.Ingest.ScopeLabels) == 0 {
		return fmt.Errorf("ingest.scope_labels must name at least one label")
	}
	return nil
}
