package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/trialrun/internal/trial"
	"github.com/nvandessel/trialrun/internal/trial/trialtest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "db", "results.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	store, err := OpenStore(ctx, path)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if _, err := store.Begin(ctx, SessionInfo{ID: "s1", Study: "buses"}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	store.Close()

	store, err = OpenStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("ListSessions() = %+v, want session s1", sessions)
	}
}

func TestStore_SaveTrials(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	w, err := store.Begin(ctx, SessionInfo{Study: "test", TrialList: "list.csv", RepeatInvalid: true})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if w.ID() == "" {
		t.Fatal("Begin() should assign a session id")
	}

	first := record(1, "a", 1.5)
	first.Response = 3
	first.ResponseTime = 2.5
	second := record(2, "b", 1)
	second.Response = trial.InvalidResponse
	second.Valid = false

	var _ Writer = w
	for _, r := range []Row{first, second, second} {
		if err := w.Save(r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Save(first); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() after Close error = %v, want ErrClosed", err)
	}

	sess, err := store.GetSession(ctx, w.ID())
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.TrialsSaved != 3 {
		t.Errorf("TrialsSaved = %d, want 3", sess.TrialsSaved)
	}
	if sess.EndedAt == nil {
		t.Error("EndedAt should be set after Close")
	}
	if !sess.RepeatInvalid || sess.TrialList != "list.csv" {
		t.Errorf("session = %+v", sess)
	}

	trials, err := store.Trials(ctx, w.ID())
	if err != nil {
		t.Fatalf("Trials() error = %v", err)
	}
	if len(trials) != 3 {
		t.Fatalf("Trials() returned %d rows, want 3", len(trials))
	}
	if trials[0].Response != 3 || trials[0].ResponseTime != 2.5 || !trials[0].Valid {
		t.Errorf("first trial = %+v", trials[0])
	}
	if trials[0].Columns["Label"] != "a" || trials[0].Columns["Duration"] != "1.5" {
		t.Errorf("first trial columns = %v", trials[0].Columns)
	}
	if trials[1].Response != trial.InvalidResponse || trials[1].Valid {
		t.Errorf("second trial = %+v", trials[1])
	}
	if trials[2].Seq != 3 || trials[2].Index != 2 {
		t.Errorf("repeated trial seq/index = %d/%d, want 3/2", trials[2].Seq, trials[2].Index)
	}
}

func TestStore_MarkAborted(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	w, err := store.Begin(ctx, SessionInfo{ID: "run", Study: "test"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := store.MarkAborted(ctx, w.ID()); err != nil {
		t.Fatalf("MarkAborted() error = %v", err)
	}
	sess, err := store.GetSession(ctx, "run")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !sess.Aborted {
		t.Error("session should be marked aborted")
	}

	if err := store.MarkAborted(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("MarkAborted(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_GetSessionNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetSession(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_DuplicateSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	if _, err := store.Begin(ctx, SessionInfo{ID: "dup", Study: "test"}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := store.Begin(ctx, SessionInfo{ID: "dup", Study: "test"}); err == nil {
		t.Error("Begin() with a duplicate id should fail")
	}
}

func TestValidateIntegrity(t *testing.T) {
	store := openTestStore(t)
	if err := ValidateIntegrity(context.Background(), store.db); err != nil {
		t.Errorf("ValidateIntegrity() error = %v", err)
	}
}

func TestStore_ListSessionsOrderWithinSecond(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	store.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	if _, err := store.Begin(ctx, SessionInfo{ID: "later"}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	store.now = func() time.Time { return base }
	if _, err := store.Begin(ctx, SessionInfo{ID: "earlier"}); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListSessions() returned %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "later" || sessions[1].ID != "earlier" {
		t.Errorf("order = %s, %s; want later, earlier", sessions[0].ID, sessions[1].ID)
	}
	if !sessions[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", sessions[1].StartedAt, base)
	}
}

func TestSessionWriter_NilRecordIgnored(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	w, err := store.Begin(ctx, SessionInfo{ID: "nil", Study: "test"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := w.Save((*trial.Record[*trialtest.Stimulus])(nil)); err != nil {
		t.Fatalf("Save(nil record) error = %v", err)
	}
	trials, err := store.Trials(ctx, "nil")
	if err != nil {
		t.Fatalf("Trials() error = %v", err)
	}
	if len(trials) != 0 {
		t.Errorf("Trials() = %d rows, want 0", len(trials))
	}
}
