// Package config loads the service configuration from a YAML file, applying
// defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type SchedulerConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	// ThresholdCooldown suppresses threshold re-fires after a run.
	// Zero re-fires on every poll while the condition holds.
	ThresholdCooldown Duration `yaml:"threshold_cooldown"`
}

type EngineConfig struct {
	// ExecutionTimeout is the per-execution wall-clock ceiling. Zero disables it.
	ExecutionTimeout Duration `yaml:"execution_timeout"`
}

type WebhookConfig struct {
	Timeout    Duration `yaml:"timeout"`
	RatePerSec int      `yaml:"rate_per_sec"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: 8080},
		DB:        DBConfig{Path: defaultDBPath()},
		Log:       LogConfig{Level: "info"},
		Scheduler: SchedulerConfig{PollInterval: Duration(30 * time.Second), ThresholdCooldown: Duration(time.Hour)},
		Engine:    EngineConfig{ExecutionTimeout: Duration(30 * time.Minute)},
		Webhook:   WebhookConfig{Timeout: Duration(10 * time.Second), RatePerSec: 5},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func defaultDBPath() string {
	dataDir := os.Getenv("FLEET_TASKS_DATA")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "fleet-tasks.db"
		}
		dataDir = filepath.Join(homeDir, ".fleet-tasks")
	}
	return filepath.Join(dataDir, "fleet-tasks.db")
}

// Duration parses YAML strings like "30s" or "1h" into a time.Duration.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
