package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo describes a run when it begins.
type SessionInfo struct {
	ID            string
	Study         string
	TrialList     string
	ResultsPath   string
	RepeatInvalid bool
}

// Session is a stored run.
type Session struct {
	ID            string     `json:"id"`
	Study         string     `json:"study"`
	TrialList     string     `json:"trial_list"`
	ResultsPath   string     `json:"results_path"`
	RepeatInvalid bool       `json:"repeat_invalid"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	TrialsSaved   int        `json:"trials_saved"`
	Aborted       bool       `json:"aborted"`
}

// TrialRow is a stored trial attempt.
type TrialRow struct {
	Seq          int               `json:"seq"`
	Index        int               `json:"index"`
	Response     int               `json:"response"`
	ResponseTime float64           `json:"response_time"`
	Valid        bool              `json:"valid"`
	Columns      map[string]string `json:"columns"`
	SavedAt      time.Time         `json:"saved_at"`
}

// Store is the SQLite results database.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenStore opens or creates the database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Begin records a new session and returns a Writer for its trials.
// An empty info.ID is replaced by a new UUID.
func (s *Store) Begin(ctx context.Context, info SessionInfo) (*SessionWriter, error) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, study, trial_list, results_path, repeat_invalid, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Study, info.TrialList, info.ResultsPath, boolToInt(info.RepeatInvalid), formatTime(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return &SessionWriter{store: s, id: info.ID}, nil
}

// MarkAborted flags a session as ended by an abort.
func (s *Store) MarkAborted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET aborted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study, trial_list, results_path, repeat_invalid, started_at, ended_at, trials_saved, aborted
		FROM sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one session.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, study, trial_list, results_path, repeat_invalid, started_at, ended_at, trials_saved, aborted
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Trials returns the trial attempts of a session in save order.
func (s *Store) Trials(ctx context.Context, sessionID string) ([]TrialRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, trial_index, response, response_time, valid, columns, saved_at
		FROM trials WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRow
	for rows.Next() {
		var (
			tr      TrialRow
			valid   int
			cols    string
			savedAt string
		)
		if err := rows.Scan(&tr.Seq, &tr.Index, &tr.Response, &tr.ResponseTime, &valid, &cols, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		tr.Valid = valid != 0
		if err := json.Unmarshal([]byte(cols), &tr.Columns); err != nil {
			return nil, fmt.Errorf("failed to decode trial columns: %w", err)
		}
		tr.SavedAt, _ = time.Parse(timeLayout, savedAt)
		out = append(out, tr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess      Session
		repeat    int
		aborted   int
		startedAt string
		endedAt   sql.NullString
		trialList sql.NullString
		results   sql.NullString
	)
	if err := sc.Scan(&sess.ID, &sess.Study, &trialList, &results, &repeat, &startedAt, &endedAt,
		&sess.TrialsSaved, &aborted); err != nil {
		return Session{}, err
	}
	sess.TrialList = trialList.String
	sess.ResultsPath = results.String
	sess.RepeatInvalid = repeat != 0
	sess.Aborted = aborted != 0
	sess.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if endedAt.Valid {
		t, err := time.Parse(timeLayout, endedAt.String)
		if err == nil {
			sess.EndedAt = &t
		}
	}
	return sess, nil
}

// SessionWriter stores the trials of one session. It implements Writer.
type SessionWriter struct {
	store  *Store
	id     string
	seq    int
	closed bool
}

// ID returns the session id.
func (w *SessionWriter) ID() string { return w.id }

// Save stores one trial attempt.
func (w *SessionWriter) Save(row Row) error {
	if row == nil {
		return nil
	}
	if w.closed {
		return ErrClosed
	}

	header := row.ResultsHeader()
	if len(header) == 0 {
		return nil
	}
	values := row.ResultsLine()
	line := formatLine(values)
	cols := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(line) {
			cols[h] = line[i]
		}
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("failed to encode trial columns: %w", err)
	}

	var (
		response     int
		responseTime float64
		valid        bool
	)
	for i, v := range values {
		if i >= len(header) {
			break
		}
		switch header[i] {
		case "Response":
			response, _ = v.(int)
		case "ResponseTime":
			responseTime, _ = v.(float64)
		case "Valid":
			valid, _ = v.(bool)
		}
	}

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trials (session_id, seq, trial_index, response, response_time, valid, columns, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.id, w.seq+1, row.TrialIndex(), response, responseTime, boolToInt(valid), string(data),
		formatTime(s.now())); err != nil {
		return fmt.Errorf("failed to insert trial %d: %w", row.TrialIndex(), err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET trials_saved = trials_saved + 1 WHERE id = ?`, w.id); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trial %d: %w", row.TrialIndex(), err)
	}
	w.seq++
	return nil
}

// Close stamps the session end time. The database stays open.
func (w *SessionWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(context.Background(),
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, formatTime(s.now()), w.id); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// timeLayout keeps every fraction digit so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
