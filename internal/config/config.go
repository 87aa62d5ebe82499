// Package config provides unified configuration loading for trialrun.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/trialrun/internal/buses"
	"github.com/nvandessel/trialrun/internal/constants"
	"github.com/nvandessel/trialrun/internal/input"
	"github.com/nvandessel/trialrun/internal/pathutil"
	"gopkg.in/yaml.v3"
)

// Config contains all trialrun configuration settings.
type Config struct {
	// Experiment selects the study and its trial list.
	Experiment ExperimentConfig `json:"experiment" yaml:"experiment"`

	// Results controls where saved trials go.
	Results ResultsConfig `json:"results" yaml:"results"`

	// Input binds keys to channels.
	Input InputConfig `json:"input" yaml:"input"`

	// Timing controls the tick loop.
	Timing TimingConfig `json:"timing" yaml:"timing"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Buses holds the bus study setup.
	Buses buses.Config `json:"buses" yaml:"buses"`
}

// ExperimentConfig selects what runs.
type ExperimentConfig struct {
	// Study is the registered study name, e.g. "buses".
	Study string `json:"study" yaml:"study"`

	// TrialList is the path of the trial list file. Supports ${VAR} and ~.
	TrialList string `json:"trial_list" yaml:"trial_list"`

	// ListName names the trial list in diagnostics.
	ListName string `json:"list_name,omitempty" yaml:"list_name,omitempty"`

	// RepeatInvalid re-presents trials that end without a valid response.
	RepeatInvalid bool `json:"repeat_invalid" yaml:"repeat_invalid"`
}

// ResultsConfig configures the results file and database.
type ResultsConfig struct {
	// Dir is the directory of the results file.
	Dir string `json:"dir" yaml:"dir"`

	// Name is the results file name; ".tsv" is added when it has no extension.
	Name string `json:"name" yaml:"name"`

	// Database is the SQLite results database. Empty disables it.
	Database string `json:"database" yaml:"database"`
}

// InputConfig configures the terminal keyboard.
type InputConfig struct {
	// Source is "keyboard" or "autopilot".
	Source string `json:"source" yaml:"source"`

	Accept    string   `json:"accept" yaml:"accept"`
	Abort     string   `json:"abort" yaml:"abort"`
	Responses []string `json:"responses" yaml:"responses"`

	// HoldWindow is how long a key counts as held after its last key event.
	HoldWindow time.Duration `json:"hold_window" yaml:"hold_window"`
}

// TimingConfig configures the tick loop.
type TimingConfig struct {
	// TickRate is the number of ticks per second.
	TickRate int `json:"tick_rate" yaml:"tick_rate"`
}

// LoggingConfig configures trialrun's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" and "trace" also write trial events to <dir>/events.jsonl.
	Level string `json:"level" yaml:"level"`

	// Dir is the directory of the event log. Empty uses the results dir.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics, e.g. ":9090". Empty disables it.
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	cfg := &Config{
		Experiment: ExperimentConfig{
			Study:    constants.DefaultStudy,
			ListName: constants.DefaultListName,
		},
		Results: ResultsConfig{
			Name: constants.DefaultResultsName,
		},
		Input: InputConfig{
			Source:     constants.SourceKeyboard.String(),
			Accept:     constants.DefaultAcceptKey,
			Abort:      constants.DefaultAbortKey,
			Responses:  append([]string(nil), constants.DefaultResponseKeys...),
			HoldWindow: constants.DefaultHoldWindow,
		},
		Timing: TimingConfig{
			TickRate: constants.DefaultTickRate,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Buses: buses.DefaultConfig(),
	}
	if dir, err := homeDir(); err == nil {
		cfg.Results.Dir = filepath.Join(dir, constants.ResultsDirName)
		cfg.Results.Database = filepath.Join(dir, constants.DatabaseFileName)
	}
	return cfg
}

// Path returns the default config file path, ~/.trialrun/config.yaml.
func Path() (string, error) {
	dir, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.trialrun/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadPath loads path when it is set, and the default locations otherwise.
// Environment variables apply in both cases.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Experiment.TrialList = expandPath(config.Experiment.TrialList)
	config.Results.Dir = expandPath(config.Results.Dir)
	config.Results.Database = expandPath(config.Results.Database)
	config.Logging.Dir = expandPath(config.Logging.Dir)

	return config, nil
}

// Save writes the configuration as YAML to path.
func Save(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Experiment.Study == "" {
		return fmt.Errorf("experiment.study must be set")
	}

	if c.Results.Name == "" {
		return fmt.Errorf("results.name must be set")
	}
	if filepath.IsAbs(c.Results.Name) {
		return fmt.Errorf("results.name must be relative to results.dir, got %s", c.Results.Name)
	}

	if !constants.InputSource(c.Input.Source).Valid() {
		return fmt.Errorf("invalid input source: %s (valid: %s, %s)",
			c.Input.Source, constants.SourceKeyboard, constants.SourceAutopilot)
	}
	if _, err := input.NewBindings(c.Input.Accept, c.Input.Abort, c.Input.Responses); err != nil {
		return fmt.Errorf("invalid key bindings: %w", err)
	}
	if c.Input.HoldWindow <= 0 {
		return fmt.Errorf("hold_window must be positive, got %v", c.Input.HoldWindow)
	}

	if c.Timing.TickRate <= 0 || c.Timing.TickRate > 1000 {
		return fmt.Errorf("tick_rate must be between 1 and 1000, got %d", c.Timing.TickRate)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if err := c.Buses.Validate(); err != nil {
		return fmt.Errorf("buses: %w", err)
	}
	return nil
}

// EventLogDir returns the directory of the trial event log.
func (c *Config) EventLogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return c.Results.Dir
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TRIALRUN_STUDY"); v != "" {
		config.Experiment.Study = v
	}
	if v := os.Getenv("TRIALRUN_TRIAL_LIST"); v != "" {
		config.Experiment.TrialList = v
	}
	if v := os.Getenv("TRIALRUN_REPEAT_INVALID"); v != "" {
		config.Experiment.RepeatInvalid = v == "true" || v == "1"
	}

	if v := os.Getenv("TRIALRUN_RESULTS_DIR"); v != "" {
		config.Results.Dir = v
	}
	if v := os.Getenv("TRIALRUN_RESULTS_NAME"); v != "" {
		config.Results.Name = v
	}
	if v, ok := os.LookupEnv("TRIALRUN_DATABASE"); ok {
		config.Results.Database = v
	}

	if v := os.Getenv("TRIALRUN_INPUT_SOURCE"); v != "" {
		config.Input.Source = v
	}
	if v := os.Getenv("TRIALRUN_HOLD_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Input.HoldWindow = d
		}
	}

	if v := os.Getenv("TRIALRUN_TICK_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Timing.TickRate = n
		}
	}

	if v := os.Getenv("TRIALRUN_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("TRIALRUN_LOG_DIR"); v != "" {
		config.Logging.Dir = v
	}

	if v := os.Getenv("TRIALRUN_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// expandPath expands ${VAR} patterns and a leading "~".
func expandPath(s string) string {
	s = expandEnvVars(s)
	if expanded, err := pathutil.ExpandHome(s); err == nil {
		return expanded
	}
	return s
}

func homeDir() (string, error) {
	return pathutil.HomeDir()
}
