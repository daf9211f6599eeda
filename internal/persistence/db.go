// Package persistence provides SQLite-based tick history and run metadata.
// Q-tables themselves live in per-agent JSON files; this store only keeps
// what the monitoring surface and later analysis need.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/clipwright/internal/engine"
)

// MetaLastIteration is the run_meta key holding the last checkpointed
// iteration.
const MetaLastIteration = "last_iteration"

// DB wraps a SQLite connection for tick history.
type DB struct {
	conn  *sqlx.DB
	runID string
}

// Tick is one stored agent tick.
type Tick struct {
	ID          int64     `db:"id" json:"-"`
	RunID       string    `db:"run_id" json:"run_id"`
	Iteration   uint64    `db:"iteration" json:"iteration"`
	Agent       string    `db:"agent" json:"agent"`
	State       string    `db:"state" json:"state"`
	Action      string    `db:"action" json:"action"`
	Success     bool      `db:"success" json:"success"`
	Reward      float64   `db:"reward" json:"reward"`
	NextState   string    `db:"next_state" json:"next_state"`
	Exploration float64   `db:"exploration" json:"exploration"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Checkpoint is one stored table save.
type Checkpoint struct {
	RunID     string    `db:"run_id" json:"run_id"`
	Iteration uint64    `db:"iteration" json:"iteration"`
	OK        bool      `db:"ok" json:"ok"`
	Error     string    `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Open opens or creates a SQLite database at the given path and starts a
// new run.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, runID: uuid.NewString()}
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

// RunID identifies this process's rows.
func (db *DB) RunID() string {
	return db.runID
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ticks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		agent TEXT NOT NULL,
		state TEXT NOT NULL,
		action TEXT NOT NULL,
		success INTEGER NOT NULL,
		reward REAL NOT NULL,
		next_state TEXT NOT NULL,
		exploration REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ticks_agent ON ticks(agent, id);
	CREATE INDEX IF NOT EXISTS idx_ticks_run ON ticks(run_id, iteration);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RecordIteration appends one iteration's agent ticks in a single
// transaction.
func (db *DB) RecordIteration(iteration uint64, outcomes []engine.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO ticks
		(run_id, iteration, agent, state, action, success, reward, next_state, exploration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, o := range outcomes {
		_, err := stmt.Exec(
			db.runID, iteration, o.Agent, o.State, o.Action,
			o.Success, o.Reward, o.NextState, o.Exploration, now,
		)
		if err != nil {
			return fmt.Errorf("insert tick %d/%s: %w", iteration, o.Agent, err)
		}
	}

	return tx.Commit()
}

// RecordCheckpoint logs a table save and, when it succeeded, advances
// last_iteration.
func (db *DB) RecordCheckpoint(iteration uint64, saveErr error) error {
	msg := ""
	if saveErr != nil {
		msg = saveErr.Error()
	}
	_, err := db.conn.Exec(
		"INSERT INTO checkpoints (run_id, iteration, ok, error, created_at) VALUES (?, ?, ?, ?, ?)",
		db.runID, iteration, saveErr == nil, msg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if saveErr != nil {
		return nil
	}
	if err := db.SaveMeta(MetaLastIteration, strconv.FormatUint(iteration, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// LastIteration returns the last checkpointed iteration, or 0 for a fresh
// database.
func (db *DB) LastIteration() (uint64, error) {
	v, err := db.GetMeta(MetaLastIteration)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", MetaLastIteration, v, err)
	}
	return n, nil
}

// RecentTicks returns up to limit of the newest ticks, newest first. An
// empty agent matches all agents.
func (db *DB) RecentTicks(agent string, limit int) ([]Tick, error) {
	ticks := []Tick{}
	var err error
	if agent == "" {
		err = db.conn.Select(&ticks,
			"SELECT * FROM ticks ORDER BY id DESC LIMIT ?", limit)
	} else {
		err = db.conn.Select(&ticks,
			"SELECT * FROM ticks WHERE agent = ? ORDER BY id DESC LIMIT ?", agent, limit)
	}
	return ticks, err
}

// Checkpoints returns up to limit of the newest checkpoint records.
func (db *DB) Checkpoints(limit int) ([]Checkpoint, error) {
	cps := []Checkpoint{}
	err := db.conn.Select(&cps,
		"SELECT run_id, iteration, ok, error, created_at FROM checkpoints ORDER BY id DESC LIMIT ?",
		limit,
	)
	return cps, err
}

// CountTicks returns how many ticks each agent has recorded across runs.
func (db *DB) CountTicks() (map[string]int64, error) {
	rows := []struct {
		Agent string `db:"agent"`
		N     int64  `db:"n"`
	}{}
	if err := db.conn.Select(&rows, "SELECT agent, COUNT(*) AS n FROM ticks GROUP BY agent"); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Agent] = r.N
	}
	slog.Debug("tick counts loaded", "agents", len(out))
	return out, nil
}
