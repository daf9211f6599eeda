package qlearn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Save writes the table to the engine's checkpoint file. The document is
// written to a temporary file in the same directory and renamed over the
// previous checkpoint, so a failed write leaves the last good save intact.
func (e *Engine) Save() error {
	if e.path == "" {
		return nil
	}
	return WriteTable(e.path, e.table)
}

// Load replaces the table with the contents of the checkpoint file. A
// missing file is a cold start and not an error. On any other failure the
// current table is left untouched and the error is returned.
func (e *Engine) Load() error {
	if e.path == "" {
		return nil
	}

	t, err := ReadTable(e.path, len(e.actions))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no saved table found, starting empty", "path", e.path)
		return nil
	}
	if err != nil {
		return err
	}

	e.table = t
	slog.Info("table loaded", "path", e.path, "states", t.Len())
	return nil
}

// WriteTable atomically persists t as a JSON object of state → values.
func WriteTable(path string, t *Table) error {
	data, err := json.Marshal(t.rows)
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// ReadTable decodes a table file. Every row must hold exactly width values.
func ReadTable(path string, width int) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	var rows map[string][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", path, err)
	}

	t := NewTable(width)
	for state, values := range rows {
		if len(values) != width {
			return nil, fmt.Errorf("table %s: state %q has %d values, want %d", path, state, len(values), width)
		}
		t.rows[state] = values
	}
	return t, nil
}
