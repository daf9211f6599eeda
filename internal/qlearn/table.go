// Package qlearn implements tabular Q-learning: an action-value table keyed
// by discretized state strings, epsilon-greedy selection, the one-step
// temporal-difference update and JSON checkpointing of the table.
package qlearn

import "sort"

// Table maps a state key to one value per action. Rows for unseen states
// are created on first access as zero vectors of the table's width.
type Table struct {
	width int
	rows  map[string][]float64
}

// NewTable creates an empty table whose rows hold width values.
func NewTable(width int) *Table {
	return &Table{
		width: width,
		rows:  make(map[string][]float64),
	}
}

// Width returns the number of actions per row.
func (t *Table) Width() int {
	return t.width
}

// Row returns the live row for state, inserting a zero vector if absent.
func (t *Table) Row(state string) []float64 {
	row, ok := t.rows[state]
	if !ok {
		row = make([]float64, t.width)
		t.rows[state] = row
	}
	return row
}

// Lookup returns a copy of the row for state without materializing it.
func (t *Table) Lookup(state string) ([]float64, bool) {
	row, ok := t.rows[state]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(row))
	copy(out, row)
	return out, true
}

// Len returns the number of materialized states.
func (t *Table) Len() int {
	return len(t.rows)
}

// States returns all materialized state keys in lexical order.
func (t *Table) States() []string {
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}
