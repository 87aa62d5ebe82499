package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/trialrun/internal/pathutil"
	"github.com/nvandessel/trialrun/internal/results"
	"github.com/nvandessel/trialrun/internal/session"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
		Long: `List and inspect the sessions stored in the results database.

Examples:
  trialrun sessions list
  trialrun sessions show 3f1c...`,
	}

	cmd.AddCommand(
		newSessionsListCmd(),
		newSessionsShowCmd(),
	)
	return cmd
}

func openResultsStore(cmd *cobra.Command) (*results.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Results.Database == "" {
		return nil, errors.New("results database is disabled (results.database is empty)")
	}
	store, err := results.OpenStore(cmd.Context(), cfg.Results.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return store, nil
}

func newSessionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openResultsStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"sessions": sessions,
					"count":    len(sessions),
				})
				return nil
			}

			w := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(w, "No sessions recorded.")
				return nil
			}
			for _, s := range sessions {
				status := "open"
				switch {
				case s.Aborted:
					status = "aborted"
				case s.EndedAt != nil:
					status = "done"
				}
				fmt.Fprintf(w, "%s  %s  %-8s %-7s %3d trials  %s\n",
					s.ID, s.StartedAt.Local().Format(time.DateTime), s.Study, status,
					s.TrialsSaved, pathutil.RedactPath(s.ResultsPath))
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 0, "Show at most this many sessions (0 for all)")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its saved trials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			store, err := openResultsStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := store.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			trials, err := store.Trials(cmd.Context(), s.ID)
			if err != nil {
				return fmt.Errorf("failed to read trials: %w", err)
			}

			// The summary file is optional: results may have been moved.
			summary, err := session.LoadSummary(summaryPathFor(s.ResultsPath))
			if err != nil {
				summary = nil
			}

			if jsonOut {
				out := map[string]interface{}{
					"session": s,
					"trials":  trials,
				}
				if summary != nil {
					out["summary"] = summary
				}
				json.NewEncoder(cmd.OutOrStdout()).Encode(out)
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session:    %s\n", s.ID)
			fmt.Fprintf(w, "Study:      %s\n", s.Study)
			fmt.Fprintf(w, "Trial list: %s\n", pathutil.RedactPath(s.TrialList))
			fmt.Fprintf(w, "Results:    %s\n", pathutil.RedactPath(s.ResultsPath))
			fmt.Fprintf(w, "Started:    %s\n", s.StartedAt.Local().Format(time.DateTime))
			if s.EndedAt != nil {
				fmt.Fprintf(w, "Ended:      %s\n", s.EndedAt.Local().Format(time.DateTime))
			}
			fmt.Fprintf(w, "Aborted:    %v\n", s.Aborted)
			fmt.Fprintf(w, "Trials:     %d\n", s.TrialsSaved)
			if summary != nil {
				fmt.Fprintf(w, "Summary:    %d loaded, %d rejected, %d valid, %d repeats, %d ticks\n",
					summary.Loaded, summary.Rejected, summary.Valid, summary.Repeats, summary.Ticks)
			}
			for _, t := range trials {
				valid := "valid"
				if !t.Valid {
					valid = "invalid"
				}
				fmt.Fprintf(w, "  #%-3d trial %-3d response %2d  rt %-8g %-7s %s\n",
					t.Seq, t.Index, t.Response, t.ResponseTime, valid, formatColumns(t.Columns))
			}
			return nil
		},
	}
}

// formatColumns renders the study columns as sorted key=value pairs.
func formatColumns(cols map[string]string) string {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+cols[k])
	}
	return strings.Join(parts, " ")
}
