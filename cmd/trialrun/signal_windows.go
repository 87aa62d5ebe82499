//go:build windows

package main

import "os"

// shutdownSignals are the signals that end a session early. Windows has no
// SIGTERM, only os.Interrupt (Ctrl+C).
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
