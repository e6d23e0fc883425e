// Package persistence stores runs, their traces and overlays in SQLite.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/deer-motility/internal/engine"
	"github.com/talgya/deer-motility/internal/terrain"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		length INTEGER NOT NULL,
		width INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		light_mode INTEGER NOT NULL,
		perception TEXT NOT NULL,
		start_x INTEGER NOT NULL,
		start_y INTEGER NOT NULL,
		classes_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trace (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		class INTEGER NOT NULL,
		tag TEXT NOT NULL,
		cost REAL NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS overlay (
		run_id TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		alpha REAL NOT NULL,
		PRIMARY KEY (run_id, pos_x, pos_y)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is the stored description of one simulation run.
type Run struct {
	ID          string `db:"id" json:"id"`
	CreatedAt   int64  `db:"created_at" json:"created_at"` // Unix seconds
	Seed        int64  `db:"seed" json:"seed"`
	Length      int    `db:"length" json:"length"`
	Width       int    `db:"width" json:"width"`
	Steps       int    `db:"steps" json:"steps"`
	LightMode   bool   `db:"light_mode" json:"light_mode"`
	Perception  string `db:"perception" json:"perception"`
	StartX      int    `db:"start_x" json:"start_x"`
	StartY      int    `db:"start_y" json:"start_y"`
	ClassesJSON string `db:"classes_json" json:"-"`
}

// NewRun describes a session about to be persisted, with a fresh id.
func NewRun(seed int64, s *engine.Session) (Run, error) {
	classes, err := json.Marshal(s.Table().Classes())
	if err != nil {
		return Run{}, fmt.Errorf("encode classes: %w", err)
	}
	cfg := s.Config()
	start := s.Start()
	return Run{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().Unix(),
		Seed:        seed,
		Length:      s.Grid().L,
		Width:       s.Grid().W,
		Steps:       cfg.Steps,
		LightMode:   cfg.LightMode,
		Perception:  cfg.Perception.String(),
		StartX:      start.X,
		StartY:      start.Y,
		ClassesJSON: string(classes),
	}, nil
}

// Classes decodes the terrain classes the run used.
func (r Run) Classes() ([]terrain.Class, error) {
	var out []terrain.Class
	if err := json.Unmarshal([]byte(r.ClassesJSON), &out); err != nil {
		return nil, fmt.Errorf("decode classes of run %s: %w", r.ID, err)
	}
	return out, nil
}

// CreateRun inserts a run row.
func (db *DB) CreateRun(r Run) error {
	_, err := db.conn.NamedExec(`INSERT INTO runs
		(id, created_at, seed, length, width, steps, light_mode, perception,
		 start_x, start_y, classes_json)
		VALUES (:id, :created_at, :seed, :length, :width, :steps, :light_mode, :perception,
		 :start_x, :start_y, :classes_json)`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun loads one run by id.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	return runs, err
}

// AppendTrace writes trace entries for a run. Rewriting a step replaces it.
func (db *DB) AppendTrace(runID string, entries engine.Trace) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO trace
		(run_id, step, pos_x, pos_y, class, tag, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(runID, e.Step, e.X, e.Y, e.Class, e.Tag, e.Cost); err != nil {
			return fmt.Errorf("insert trace step %d: %w", e.Step, err)
		}
	}

	return tx.Commit()
}

// LoadTrace returns a run's trace in step order.
func (db *DB) LoadTrace(runID string) (engine.Trace, error) {
	var trace engine.Trace
	err := db.conn.Select(&trace,
		"SELECT step, pos_x AS x, pos_y AS y, class, tag, cost FROM trace WHERE run_id = ? ORDER BY step",
		runID,
	)
	return trace, err
}

// TraceLen returns the number of stored steps for a run.
func (db *DB) TraceLen(runID string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM trace WHERE run_id = ?", runID)
	return n, err
}

// SaveOverlay replaces a run's overlay. Only visited cells are stored.
func (db *DB) SaveOverlay(runID string, o *engine.Overlay) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM overlay WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT INTO overlay (run_id, pos_x, pos_y, alpha) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range o.VisitedCells() {
		if _, err := stmt.Exec(runID, p.X, p.Y, o.At(p.X, p.Y)); err != nil {
			return fmt.Errorf("insert overlay cell %v: %w", p, err)
		}
	}

	return tx.Commit()
}

type overlayRow struct {
	X     int     `db:"pos_x"`
	Y     int     `db:"pos_y"`
	Alpha float64 `db:"alpha"`
}

// LoadOverlay rebuilds a run's overlay from its visited cells.
func (db *DB) LoadOverlay(r Run) (*engine.Overlay, error) {
	var rows []overlayRow
	if err := db.conn.Select(&rows, "SELECT pos_x, pos_y, alpha FROM overlay WHERE run_id = ?", r.ID); err != nil {
		return nil, err
	}
	o := engine.NewOverlay(r.Length, r.Width, r.LightMode)
	for _, row := range rows {
		if row.X < 0 || row.X >= r.Length || row.Y < 0 || row.Y >= r.Width {
			return nil, fmt.Errorf("overlay cell (%d,%d) outside %dx%d", row.X, row.Y, r.Length, r.Width)
		}
		o.Set(row.X, row.Y, row.Alpha)
	}
	return o, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// SaveSession performs a full save of a session's trace and overlay.
func (db *DB) SaveSession(runID string, s *engine.Session) error {
	trace := s.Trace()
	slog.Info("saving session", "run", runID, "steps", len(trace))

	if err := db.AppendTrace(runID, trace); err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	if err := db.SaveOverlay(runID, s.Overlay()); err != nil {
		return fmt.Errorf("save overlay: %w", err)
	}
	if err := db.SaveMeta("last_run", runID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("session saved", "run", runID)
	return nil
}
