package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	stageFanOut    = "fan_out"
	stageSynthesis = "synthesis"
)

// SQLiteRunStore implements core.RunStore with SQLite storage.
type SQLiteRunStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteRunStore opens or creates the database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteRunStore{dbPath: dbPath, db: db}

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteRunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type migration struct {
	version int
	name    string
}

// migrate applies every embedded migration newer than the schema version.
func (s *SQLiteRunStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet
		version = 0
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var pending []migration
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return fmt.Errorf("migration %s: bad version prefix", e.Name())
		}
		if v > version {
			pending = append(pending, migration{version: v, name: e.Name()})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		script, err := migrationsFS.ReadFile("migrations/" + m.name)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(script)); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteRunStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Save inserts or replaces a run record together with its outcomes.
func (s *SQLiteRunStore) Save(ctx context.Context, rec *core.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidState, "run record has no id")
	}
	specialists, err := json.Marshal(rec.Specialists)
	if err != nil {
		return fmt.Errorf("marshaling specialists: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, state, document_size, document_digest, source, specialists,
			report, error_code, error_message, created_at, finished_at, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), string(rec.State), rec.DocumentSize, rec.DocumentDigest, rec.Source,
		string(specialists), rec.Report, rec.ErrorCode, rec.ErrorMessage,
		rec.CreatedAt.UTC(), rec.FinishedAt.UTC(), int64(rec.Duration),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE run_id = ?", string(rec.ID)); err != nil {
		return fmt.Errorf("clearing outcomes: %w", err)
	}
	for i := range rec.Outcomes {
		if err := insertOutcome(ctx, tx, rec.ID, stageFanOut, i, &rec.Outcomes[i]); err != nil {
			return err
		}
	}
	if rec.Synthesis != nil {
		if err := insertOutcome(ctx, tx, rec.ID, stageSynthesis, 0, rec.Synthesis); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

func insertOutcome(ctx context.Context, tx *sql.Tx, id core.RunID, stage string, pos int, o *core.Outcome) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outcomes (
			run_id, stage, position, task_id, status, text, error, error_code,
			started_at, duration_ns, attempts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(id), stage, pos, string(o.TaskID), string(o.Status), o.Text, o.Error, o.ErrorCode,
		nullableTime(o.StartedAt), int64(o.Duration), o.Attempts,
	)
	if err != nil {
		return fmt.Errorf("saving outcome %s: %w", o.TaskID, err)
	}
	return nil
}

// Load returns a run record, or nil when it does not exist.
func (s *SQLiteRunStore) Load(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec         core.RunRecord
		state       string
		specialists string
		durationNS  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, document_size, document_digest, source, specialists,
			report, error_code, error_message, created_at, finished_at, duration_ns
		FROM runs WHERE id = ?`, string(id)).Scan(
		&rec.ID, &state, &rec.DocumentSize, &rec.DocumentDigest, &rec.Source, &specialists,
		&rec.Report, &rec.ErrorCode, &rec.ErrorMessage, &rec.CreatedAt, &rec.FinishedAt, &durationNS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	rec.State = core.RunState(state)
	rec.Duration = time.Duration(durationNS)
	if err := json.Unmarshal([]byte(specialists), &rec.Specialists); err != nil {
		return nil, fmt.Errorf("decoding specialists of run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, task_id, status, text, error, error_code, started_at, duration_ns, attempts
		FROM outcomes WHERE run_id = ?
		ORDER BY stage, position`, string(id))
	if err != nil {
		return nil, fmt.Errorf("loading outcomes of run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stage, status string
			o             core.Outcome
			started       sql.NullTime
			dur           int64
		)
		if err := rows.Scan(&stage, &o.TaskID, &status, &o.Text, &o.Error, &o.ErrorCode, &started, &dur, &o.Attempts); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = core.OutcomeStatus(status)
		o.Duration = time.Duration(dur)
		if started.Valid {
			o.StartedAt = started.Time
		}
		if stage == stageSynthesis {
			synthesis := o
			rec.Synthesis = &synthesis
			continue
		}
		rec.Outcomes = append(rec.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return &rec, nil
}

// List returns run summaries, newest first. A limit <= 0 returns all.
func (s *SQLiteRunStore) List(ctx context.Context, limit int) ([]core.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.state, r.source, r.created_at, r.finished_at,
			COALESCE(SUM(CASE WHEN o.status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN o.status = 'failure' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN outcomes o ON o.run_id = r.id AND o.stage = ?
		GROUP BY r.id
		ORDER BY r.created_at DESC
		LIMIT ?`, stageFanOut, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]core.RunSummary, 0)
	for rows.Next() {
		var (
			sum   core.RunSummary
			state string
		)
		if err := rows.Scan(&sum.ID, &state, &sum.Source, &sum.CreatedAt, &sum.FinishedAt, &sum.Succeeded, &sum.Failed); err != nil {
			return nil, fmt.Errorf("scanning run summary: %w", err)
		}
		sum.State = core.RunState(state)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run summaries: %w", err)
	}
	return summaries, nil
}

// Delete removes a run and its outcomes. It reports whether the run existed.
func (s *SQLiteRunStore) Delete(ctx context.Context, id core.RunID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", string(id))
	if err != nil {
		return false, fmt.Errorf("deleting run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Backup writes a consistent copy of the database to path.
func (s *SQLiteRunStore) Backup(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup target %s already exists", path)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ core.RunStore = (*SQLiteRunStore)(nil)
