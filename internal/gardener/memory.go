package gardener

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

const maxRecords = 20

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	At        time.Time `json:"at"`
	RunID     string    `json:"run_id"`
	Iteration uint64    `json:"iteration"`
	Failures  uint64    `json:"failures"`
	Rejected  uint64    `json:"rejected"`
	Paused    bool      `json:"paused"`
	Level     string    `json:"level"`
	Action    string    `json:"action"`
	Rationale string    `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent steward cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not
// found or unreadable.
func LoadMemory(path string) *CycleMemory {
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	mem := CycleMemory{path: path}
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("gardener memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	return &mem
}

// Save writes the memory to disk. An empty path keeps memory in-process.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal gardener memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		slog.Error("failed to write gardener memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Last returns the most recent record, or nil.
func (m *CycleMemory) Last() *CycleRecord {
	if len(m.Records) == 0 {
		return nil
	}
	return &m.Records[len(m.Records)-1]
}

// PausedByStewardStreak counts the trailing cycles that found the run
// paused, provided the pause began with a steward stop. Zero means the
// pause (if any) was not the steward's doing.
func (m *CycleMemory) PausedByStewardStreak() int {
	streak := 0
	for i := len(m.Records) - 1; i >= 0; i-- {
		r := m.Records[i]
		if r.Action == ActionStop {
			return streak + 1
		}
		if !r.Paused {
			return 0
		}
		streak++
	}
	return 0
}
