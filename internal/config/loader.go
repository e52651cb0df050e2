package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns the standard config file location,
// ~/.config/costguard/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "costguard", "config.yaml"), nil
}

// Load reads and parses the YAML config at path, then applies defaults.
// A missing file is not an error: the full default configuration is
// returned so the CLI works out of the box with flags alone.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	// Seed feature switches to enabled so that an absent key means "on"
	// and only an explicit `enabled: false` turns a feature off.
	cfg := Config{
		Detection: DetectionConfig{
			Enabled:            true,
			AlertOnNewServices: true,
			AlertOnServiceDrop: true,
		},
		Slack: SlackConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Environment {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "none":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Budgets.MonthlyAmount < 0 {
		return fmt.Errorf("monthly budget must be non-negative, got %v", c.Budgets.MonthlyAmount)
	}
	if c.Detection.BaselineDays < 1 || c.Detection.BaselineDays > 90 {
		return fmt.Errorf("baseline_days must be in [1,90], got %d", c.Detection.BaselineDays)
	}
	return nil
}
