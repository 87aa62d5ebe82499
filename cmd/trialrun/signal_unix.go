//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that end a session early: SIGINT and SIGTERM.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
