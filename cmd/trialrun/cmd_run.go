package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/trialrun/internal/config"
	"github.com/nvandessel/trialrun/internal/constants"
	"github.com/nvandessel/trialrun/internal/experiment"
	"github.com/nvandessel/trialrun/internal/input"
	"github.com/nvandessel/trialrun/internal/logging"
	"github.com/nvandessel/trialrun/internal/metrics"
	"github.com/nvandessel/trialrun/internal/pathutil"
	"github.com/nvandessel/trialrun/internal/results"
	"github.com/nvandessel/trialrun/internal/sched"
	"github.com/nvandessel/trialrun/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment session",
		Long: `Run an experiment session from a trial list.

The session waits for the accept key before the first trial. Each trial
attempt is appended to the results file and, unless results.database is
empty, recorded in the results database. The abort key ends the session
after the current trial.

With --simulate a scripted subject answers on a virtual clock, so a full
session finishes in well under a second.

Examples:
  trialrun run --trial-list lists/buses.txt --name P01
  trialrun run --trial-list lists/buses.txt --simulate --seed 7`,
		RunE: runSession,
	}

	cmd.Flags().String("study", "", "Study to run (default from config)")
	cmd.Flags().String("trial-list", "", "Trial list file (default from config)")
	cmd.Flags().String("name", "", "Results file name inside results.dir")
	cmd.Flags().String("results-dir", "", "Results directory (default from config)")
	cmd.Flags().Bool("repeat-invalid", false, "Re-present trials without a valid response")
	cmd.Flags().Bool("simulate", false, "Answer with a simulated subject on a virtual clock")
	cmd.Flags().Uint64("seed", 1, "Random seed of the simulated subject")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	st, err := lookupStudy(cfg.Experiment.Study)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	sessionID := uuid.NewString()

	resultsPath, err := pathutil.ResultsFile(cfg.Results.Dir, cfg.Results.Name)
	if err != nil {
		return fmt.Errorf("invalid results name: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
	defer stop()

	events := logging.NewEventLog(cfg.EventLogDir(), cfg.Logging.Level, sessionID)
	defer events.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sink := results.NewSink(resultsPath, logger)
	writers := results.Multi{sink}
	var store *results.Store
	if cfg.Results.Database != "" {
		store, err = results.OpenStore(ctx, cfg.Results.Database)
		if err != nil {
			return fmt.Errorf("failed to open results database: %w", err)
		}
		defer store.Close()

		sw, err := store.Begin(ctx, results.SessionInfo{
			ID:            sessionID,
			Study:         cfg.Experiment.Study,
			TrialList:     cfg.Experiment.TrialList,
			ResultsPath:   resultsPath,
			RepeatInvalid: cfg.Experiment.RepeatInvalid,
		})
		if err != nil {
			return fmt.Errorf("failed to record session: %w", err)
		}
		writers = append(writers, sw)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	opts := []experiment.Option{
		experiment.WithTrialList(cfg.Experiment.TrialList),
		experiment.WithListName(cfg.Experiment.ListName),
		experiment.WithRepeatInvalid(cfg.Experiment.RepeatInvalid),
		experiment.WithLogger(logger),
		experiment.WithEventLog(events),
		experiment.WithMetrics(m),
	}

	switch constants.InputSource(cfg.Input.Source) {
	case constants.SourceAutopilot:
		seed, _ := cmd.Flags().GetUint64("seed")
		opts = append(opts,
			experiment.WithClock(sched.NewStepClock(time.Second/time.Duration(cfg.Timing.TickRate))),
			experiment.WithDevice(input.NewAutopilot(constants.SimulatedAcceptInterval, seed)),
			experiment.WithTickLimit(constants.MaxSimulatedTicks))
	default:
		bindings, err := input.NewBindings(cfg.Input.Accept, cfg.Input.Abort, cfg.Input.Responses)
		if err != nil {
			return fmt.Errorf("invalid key bindings: %w", err)
		}
		kb := input.NewKeyboard(bindings, input.KeyboardOptions{
			HoldWindow:  cfg.Input.HoldWindow,
			OnInterrupt: cancel,
		})
		g.Go(func() error {
			if err := kb.Run(gctx); err != nil {
				return fmt.Errorf("keyboard: %w", err)
			}
			return nil
		})
		opts = append(opts,
			experiment.WithClock(sched.NewRealClock(cfg.Timing.TickRate)),
			experiment.WithDevice(kb))
		fmt.Fprintf(cmd.ErrOrStderr(), "Press %s to start, %s to abort.\r\n", cfg.Input.Accept, cfg.Input.Abort)
	}

	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, reg, logger)
	}

	var (
		summary session.Summary
		runErr  error
	)
	g.Go(func() error {
		defer cancel()
		summary, runErr = st.run(gctx, studyEnv{cfg: cfg, logger: logger, writer: writers, opts: opts})
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warn("session service stopped", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	summary.ID = sessionID
	summary.Study = cfg.Experiment.Study
	summary.ResultsPath = resultsPath

	if store != nil && (summary.Aborted || runErr != nil) {
		if err := store.MarkAborted(context.Background(), sessionID); err != nil {
			logger.Warn("failed to mark session aborted", "session", sessionID, "error", err)
		}
	}

	logger.Info("session finished", "session", sessionID, "results", resultsPath, "rows", sink.Rows())

	summaryPath := summaryPathFor(resultsPath)
	if err := session.SaveSummary(&summary, summaryPath); err != nil {
		logger.Warn("failed to save session summary", "path", summaryPath, "error", err)
	}

	if jsonOut {
		json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
	} else {
		printSummary(cmd.OutOrStdout(), &summary)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// summaryPathFor returns the summary file kept next to a results file.
func summaryPathFor(resultsPath string) string {
	base := strings.TrimSuffix(filepath.Base(resultsPath), filepath.Ext(resultsPath))
	return session.SummaryPath(filepath.Dir(resultsPath), base)
}

// applyRunFlags overrides cfg with the flags the operator set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if v, _ := flags.GetString("study"); v != "" {
		cfg.Experiment.Study = v
	}
	if v, _ := flags.GetString("trial-list"); v != "" {
		cfg.Experiment.TrialList = v
	}
	if v, _ := flags.GetString("name"); v != "" {
		cfg.Results.Name = v
	}
	if v, _ := flags.GetString("results-dir"); v != "" {
		cfg.Results.Dir = v
	}
	if flags.Changed("repeat-invalid") {
		cfg.Experiment.RepeatInvalid, _ = flags.GetBool("repeat-invalid")
	}
	if simulate, _ := flags.GetBool("simulate"); simulate {
		cfg.Input.Source = constants.SourceAutopilot.String()
	}
	if v, _ := flags.GetString("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// serveMetrics serves /metrics until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func printSummary(w io.Writer, s *session.Summary) {
	status := "completed"
	switch {
	case s.Error != "":
		status = "stopped"
	case s.Aborted:
		status = "aborted"
	}
	fmt.Fprintf(w, "Session %s %s\n", s.ID, status)
	fmt.Fprintf(w, "  study:     %s\n", s.Study)
	fmt.Fprintf(w, "  trials:    %d loaded, %d rejected\n", s.Loaded, s.Rejected)
	fmt.Fprintf(w, "  saved:     %d (%d valid, %d invalid, %d repeats)\n", s.Saved, s.Valid, s.Invalid(), s.Repeats)
	fmt.Fprintf(w, "  duration:  %s\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  results:   %s\n", pathutil.RedactPath(s.ResultsPath))
	if s.Error != "" {
		fmt.Fprintf(w, "  error:     %s\n", s.Error)
	}
}
