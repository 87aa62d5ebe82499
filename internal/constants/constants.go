// Package constants provides named defaults used throughout trialrun.
package constants

import "time"

// Storage locations under the user's home directory.
const (
	// HomeDirName is the trialrun directory under the user's home.
	HomeDirName = ".trialrun"

	// ConfigFileName is the config file inside HomeDirName.
	ConfigFileName = "config.yaml"

	// ResultsDirName is the default results directory inside HomeDirName.
	ResultsDirName = "results"

	// DatabaseFileName is the default results database inside HomeDirName.
	DatabaseFileName = "results.db"
)

// Results file naming.
const (
	// DefaultResultsName is the results file name without extension.
	DefaultResultsName = "Results"

	// ResultsFileExt is the extension of the tab-separated results file.
	ResultsFileExt = ".tsv"

	// DefaultListName names the trial list in diagnostics.
	DefaultListName = "TrialList"
)

// Default study.
const (
	DefaultStudy = "buses"
)

// Timing defaults.
const (
	// DefaultTickRate is the scheduler rate in ticks per second.
	DefaultTickRate = 60

	// DefaultHoldWindow is how long a terminal key counts as held after its
	// last key event.
	DefaultHoldWindow = 150 * time.Millisecond

	// SimulatedAcceptInterval is the autopilot tap interval in ticks.
	SimulatedAcceptInterval = 90

	// MaxSimulatedTicks bounds a simulated run (one virtual day at 60 Hz).
	MaxSimulatedTicks = 60 * 60 * 60 * 24
)

// Default key bindings of the terminal keyboard.
const (
	DefaultAcceptKey = "space"
	DefaultAbortKey  = "esc"
)

// DefaultResponseKeys are the key names of response buttons 1 to 4.
var DefaultResponseKeys = []string{"1", "2", "3", "4"}
