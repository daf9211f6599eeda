package qlearn

import "sort"

// Strategy is the greedy choice learned for one state.
type Strategy struct {
	State  string  `json:"state"`
	Action string  `json:"action"`
	Value  float64 `json:"value"`
}

// Summarize returns up to topN states ranked by their best value, highest
// first, ties broken by state key. It does not materialize any rows.
func (e *Engine) Summarize(topN int) []Strategy {
	return SummarizeTable(e.table, e.actions, topN)
}

// SummarizeTable ranks the rows of t for the given vocabulary.
func SummarizeTable(t *Table, actions []string, topN int) []Strategy {
	out := make([]Strategy, 0, t.Len())
	for _, state := range t.States() {
		row := t.rows[state]
		i := argmax(row)
		out = append(out, Strategy{State: state, Action: actions[i], Value: row[i]})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Value > out[b].Value
	})

	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
