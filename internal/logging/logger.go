// Package logging provides leveled logging and trial event tracing for trialrun.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operator console)
//   - An EventLog of structured JSONL trial events (<log dir>/events.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug for per-tick logging.
const LevelTrace = slog.LevelDebug - 4

// EventFile is the name of the trial event log.
const EventFile = "events.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// EventLog appends trial events (responses, timeouts, aborts, saves) to a
// JSONL file. It is safe for concurrent use. A nil EventLog is valid and
// all its methods are no-ops.
type EventLog struct {
	mu      sync.Mutex
	file    *os.File
	session string
	now     func() time.Time
}

// NewEventLog opens dir/events.jsonl for append when level is debug or trace.
// At info level, or when the file cannot be opened, it returns nil.
func NewEventLog(dir, level, session string) *EventLog {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, EventFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLog{file: f, session: session, now: time.Now}
}

// Log writes one event. "time" and "session" fields are added; the caller's
// map is not mutated.
func (l *EventLog) Log(event map[string]any) {
	if l == nil {
		return
	}

	entry := make(map[string]any, len(event)+2)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = l.now().UTC().Format(time.RFC3339Nano)
	if l.session != "" {
		entry["session"] = l.session
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_, _ = l.file.Write(data)
}

// Close closes the file. Safe to call on a nil receiver and more than once.
func (l *EventLog) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	l.file.Close()
	l.file = nil
}
