package results

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/trialrun/internal/trial"
	"github.com/nvandessel/trialrun/internal/trial/trialtest"
)

const testHeader = "Index\tLabel\tDuration\tResponse\tResponseTime\tValid\n"

func record(index int, label string, duration float64) *trial.Record[*trialtest.Stimulus] {
	return trial.NewRecord(index, &trialtest.Stimulus{Label: label, Duration: duration})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func mustSave(t *testing.T, w Writer, row Row) {
	t.Helper()
	if err := w.Save(row); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func mustClose(t *testing.T, w Writer) {
	t.Helper()
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Stat(%s) error = %v, want no file", path, err)
	}
}

func TestSink_FirstSaveWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.tsv")
	sink := NewSink(path, nil)

	r := record(1, "a", 1.5)
	r.Response = 2
	r.ResponseTime = 3.25
	mustSave(t, sink, r)

	want := testHeader + "1\ta\t1.5\t2\t3.25\ttrue\n"
	if got := readFile(t, path); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if sink.Rows() != 1 {
		t.Errorf("Rows() = %d, want 1", sink.Rows())
	}
}

func TestSink_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.tsv")
	sink := NewSink(path, nil)

	mustSave(t, sink, record(1, "a", 1))
	r := record(2, "b", 2)
	r.Valid = false
	mustSave(t, sink, r)
	mustClose(t, sink)

	want := testHeader +
		"1\ta\t1\t0\t0\ttrue\n" +
		"2\tb\t2\t0\t0\tfalse\n" +
		"\n"
	if got := readFile(t, path); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

func TestSink_CloseWithoutSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.tsv")
	sink := NewSink(path, nil)

	mustClose(t, sink)
	mustClose(t, sink)
	assertNoFile(t, path)
}

func TestSink_SaveAfterClose(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "results.tsv"), nil)
	mustSave(t, sink, record(1, "a", 1))
	mustClose(t, sink)

	if err := sink.Save(record(2, "b", 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() after Close error = %v, want ErrClosed", err)
	}
}

func TestSink_NilRowsIgnored(t *testing.T) {
	tests := []struct {
		name string
		row  Row
	}{
		{"untyped nil", nil},
		{"nil record", (*trial.Record[*trialtest.Stimulus])(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results.tsv")
			sink := NewSink(path, nil)

			mustSave(t, sink, tt.row)
			mustClose(t, sink)

			assertNoFile(t, path)
			if sink.Rows() != 0 {
				t.Errorf("Rows() = %d, want 0", sink.Rows())
			}
		})
	}
}

func TestSink_WritesValuesVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.tsv")
	sink := NewSink(path, nil)

	mustSave(t, sink, record(1, ` say "hi"`, 1))
	mustSave(t, sink, record(2, `\.`, 1))
	mustClose(t, sink)

	lines := strings.Split(readFile(t, path), "\n")
	if lines[1] != "1\t say \"hi\"\t1\t0\t0\ttrue" {
		t.Errorf("line 2 = %q", lines[1])
	}
	if lines[2] != "2\t\\.\t1\t0\t0\ttrue" {
		t.Errorf("line 3 = %q", lines[2])
	}
}

func TestSink_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.tsv")

	first := NewSink(path, nil)
	mustSave(t, first, record(1, "a", 1))
	mustClose(t, first)

	second := NewSink(path, nil)
	mustSave(t, second, record(1, "a", 1))
	mustClose(t, second)

	block := testHeader + "1\ta\t1\t0\t0\ttrue\n" + "\n"
	if got := readFile(t, path); got != block+block {
		t.Errorf("file = %q, want two blocks %q", got, block+block)
	}
}

func TestSink_InvalidResponseSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.tsv")
	sink := NewSink(path, nil)

	r := record(4, "x", 0.5)
	r.Response = trial.InvalidResponse
	r.ResponseTime = 7
	r.Valid = false
	mustSave(t, sink, r)

	if got := readFile(t, path); !strings.Contains(got, "4\tx\t0.5\t-1\t7\tfalse\n") {
		t.Errorf("file = %q, want sentinel row", got)
	}
}

type stubWriter struct {
	saved    []int
	closed   int
	saveErr  error
	closeErr error
}

func (w *stubWriter) Save(row Row) error {
	w.saved = append(w.saved, row.TrialIndex())
	return w.saveErr
}

func (w *stubWriter) Close() error {
	w.closed++
	return w.closeErr
}

func TestMulti(t *testing.T) {
	errSave := errors.New("save failed")
	errClose := errors.New("close failed")
	a := &stubWriter{saveErr: errSave}
	b := &stubWriter{closeErr: errClose}
	m := Multi{a, b}

	if err := m.Save(record(3, "a", 1)); !errors.Is(err, errSave) {
		t.Errorf("Save() error = %v, want %v", err, errSave)
	}
	if !slices.Equal(a.saved, []int{3}) || !slices.Equal(b.saved, []int{3}) {
		t.Errorf("saved = %v, %v; every writer should receive the row", a.saved, b.saved)
	}

	if err := m.Close(); !errors.Is(err, errClose) {
		t.Errorf("Close() error = %v, want %v", err, errClose)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed = %d, %d; want 1, 1", a.closed, b.closed)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{12, "12"},
		{-1, "-1"},
		{0.1, "0.1"},
		{2.0, "2"},
		{float32(0.5), "0.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
