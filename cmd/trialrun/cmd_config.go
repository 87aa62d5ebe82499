package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/trialrun/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage trialrun configuration",
		Long: `View and modify trialrun configuration settings.

Configuration is stored in ~/.trialrun/config.yaml unless --config names
another file.

Examples:
  trialrun config list                              # Show all settings
  trialrun config get experiment.trial_list         # Get a specific setting
  trialrun config set experiment.repeat_invalid true
  trialrun config set buses.max_inter_trial 3`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				p, err := config.Path()
				if err != nil {
					return fmt.Errorf("failed to locate config: %w", err)
				}
				path = p
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			}
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	switch key {
	case "experiment.study":
		return cfg.Experiment.Study, true
	case "experiment.trial_list":
		return cfg.Experiment.TrialList, true
	case "experiment.list_name":
		return cfg.Experiment.ListName, true
	case "experiment.repeat_invalid":
		return cfg.Experiment.RepeatInvalid, true
	case "results.dir":
		return cfg.Results.Dir, true
	case "results.name":
		return cfg.Results.Name, true
	case "results.database":
		return cfg.Results.Database, true
	case "input.source":
		return cfg.Input.Source, true
	case "input.accept":
		return cfg.Input.Accept, true
	case "input.abort":
		return cfg.Input.Abort, true
	case "input.responses":
		return strings.Join(cfg.Input.Responses, ","), true
	case "input.hold_window":
		return cfg.Input.HoldWindow.String(), true
	case "timing.tick_rate":
		return cfg.Timing.TickRate, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.dir":
		return cfg.Logging.Dir, true
	case "metrics.addr":
		return cfg.Metrics.Addr, true
	case "buses.min_inter_trial":
		return cfg.Buses.MinInterTrial, true
	case "buses.max_inter_trial":
		return cfg.Buses.MaxInterTrial, true
	case "buses.initial_camera_x":
		return cfg.Buses.InitialCameraX, true
	case "buses.initial_buses_x":
		return cfg.Buses.InitialBusesX, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "experiment.study":
		if _, err := lookupStudy(value); err != nil {
			return err
		}
		cfg.Experiment.Study = value
	case "experiment.trial_list":
		cfg.Experiment.TrialList = value
	case "experiment.list_name":
		cfg.Experiment.ListName = value
	case "experiment.repeat_invalid":
		cfg.Experiment.RepeatInvalid = value == "true" || value == "1"
	case "results.dir":
		cfg.Results.Dir = value
	case "results.name":
		cfg.Results.Name = value
	case "results.database":
		cfg.Results.Database = value
	case "input.source":
		cfg.Input.Source = value
	case "input.accept":
		cfg.Input.Accept = value
	case "input.abort":
		cfg.Input.Abort = value
	case "input.responses":
		keys := strings.Split(value, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		cfg.Input.Responses = keys
	case "input.hold_window":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Input.HoldWindow = d
	case "timing.tick_rate":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid tick rate: %s (must be an integer)", value)
		}
		cfg.Timing.TickRate = n
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.dir":
		cfg.Logging.Dir = value
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "buses.min_inter_trial":
		return setFloat(&cfg.Buses.MinInterTrial, value)
	case "buses.max_inter_trial":
		return setFloat(&cfg.Buses.MaxInterTrial, value)
	case "buses.initial_camera_x":
		return setFloat(&cfg.Buses.InitialCameraX, value)
	case "buses.initial_buses_x":
		return setFloat(&cfg.Buses.InitialBusesX, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %s", value)
	}
	*dst = f
	return nil
}
