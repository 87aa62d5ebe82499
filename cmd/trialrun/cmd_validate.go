package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/trialrun/internal/logging"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [trial-list]",
		Short: "Check a trial list without running it",
		Long: `Parse a trial list the way a session would and report which rows load.

A wrong header fails the check. Rows with the wrong number of fields or
values the study cannot decode are listed and skipped, as during a run.

Examples:
  trialrun validate lists/buses.txt
  trialrun validate --study buses lists/buses.txt --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("study"); v != "" {
				cfg.Experiment.Study = v
			}
			path := cfg.Experiment.TrialList
			if len(args) == 1 {
				path = args[0]
			}

			st, err := lookupStudy(cfg.Experiment.Study)
			if err != nil {
				return err
			}
			text, err := readTrialList(path)
			if err != nil {
				return err
			}

			report, parseErr := st.check(text, logging.Discard())
			report.Path = path

			if jsonOut {
				out := map[string]interface{}{
					"path":     report.Path,
					"columns":  report.Columns,
					"accepted": report.Accepted,
					"rejected": report.Rejected,
					"valid":    parseErr == nil,
				}
				if parseErr != nil {
					out["error"] = parseErr.Error()
				}
				json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Trial list: %s\n", path)
				if parseErr != nil {
					fmt.Fprintf(w, "  %v\n", parseErr)
				} else {
					fmt.Fprintf(w, "  %d trials accepted, %d rows rejected\n", report.Accepted, len(report.Rejected))
					for _, r := range report.Rejected {
						fmt.Fprintf(w, "  - %s\n", r.Error)
					}
				}
			}

			if parseErr != nil {
				return fmt.Errorf("trial list is not usable: %w", parseErr)
			}
			return nil
		},
	}

	cmd.Flags().String("study", "", "Study whose trial format to check (default from config)")
	return cmd
}
