package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/nvandessel/trialrun/internal/buses"
	"github.com/nvandessel/trialrun/internal/config"
	"github.com/nvandessel/trialrun/internal/experiment"
	"github.com/nvandessel/trialrun/internal/results"
	"github.com/nvandessel/trialrun/internal/session"
	"github.com/nvandessel/trialrun/internal/trial"
	"github.com/nvandessel/trialrun/internal/triallist"
)

// studyEnv is what a study needs to build and run its controller.
type studyEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	writer results.Writer
	opts   []experiment.Option
}

// study is a registered experiment.
type study struct {
	description string
	run         func(ctx context.Context, env studyEnv) (session.Summary, error)
	check       func(text string, logger *slog.Logger) (listReport, error)
}

var studies = map[string]study{
	"buses": {
		description: "Bus illusion: judge whether two moving buses changed speed",
		run: func(ctx context.Context, env studyEnv) (session.Summary, error) {
			hooks := buses.NewStudy(env.cfg.Buses, buses.NewLogScene(env.logger), env.logger)
			c := experiment.New(buses.New, hooks, env.writer, env.opts...)
			return c.Run(ctx)
		},
		check: checkList(buses.New),
	},
}

func lookupStudy(name string) (study, error) {
	st, ok := studies[name]
	if !ok {
		return study{}, fmt.Errorf("unknown study %q (known: %s)", name, strings.Join(studyNames(), ", "))
	}
	return st, nil
}

func studyNames() []string {
	names := make([]string, 0, len(studies))
	for name := range studies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// listReport is the outcome of parsing a trial list without running it.
type listReport struct {
	Path     string     `json:"path"`
	Columns  []string   `json:"columns"`
	Accepted int        `json:"accepted"`
	Rejected []rowIssue `json:"rejected"`
}

type rowIssue struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// checkList parses a trial list for the payload type made by factory.
func checkList[P trial.Payload](factory trial.Factory[P]) func(string, *slog.Logger) (listReport, error) {
	return func(text string, logger *slog.Logger) (listReport, error) {
		table, err := triallist.Parse(text, factory, triallist.WithLogger(logger))
		report := listReport{
			Columns:  factory().ListColumns(),
			Accepted: table.Count(),
			Rejected: []rowIssue{},
		}
		for _, re := range table.Rejected() {
			report.Rejected = append(report.Rejected, rowIssue{Line: re.Line, Error: re.Error()})
		}
		return report, err
	}
}

// readTrialList reads a trial list file, distinguishing a missing file.
func readTrialList(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no trial list given (use --trial-list or experiment.trial_list)")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", triallist.ErrMissingSource, path)
	}
	if err != nil {
		return "", fmt.Errorf("reading trial list: %w", err)
	}
	return string(data), nil
}
