package agents

// History is a bounded FIFO of recent observed magnitudes. When full, the
// oldest value is dropped to make room.
type History struct {
	max    int
	values []float64
}

// NewHistory creates a history holding at most max values.
func NewHistory(max int) *History {
	return &History{max: max, values: make([]float64, 0, max)}
}

// Push appends v, evicting the oldest value if the history is full.
func (h *History) Push(v float64) {
	if len(h.values) == h.max {
		copy(h.values, h.values[1:])
		h.values = h.values[:h.max-1]
	}
	h.values = append(h.values, v)
}

// Len returns the number of stored values.
func (h *History) Len() int {
	return len(h.values)
}

// Back returns the n-th most recent value (1 = latest). ok is false when
// fewer than n values are stored.
func (h *History) Back(n int) (v float64, ok bool) {
	if n < 1 || n > len(h.values) {
		return 0, false
	}
	return h.values[len(h.values)-n], true
}

// Oldest returns the oldest stored value.
func (h *History) Oldest() (float64, bool) {
	if len(h.values) == 0 {
		return 0, false
	}
	return h.values[0], true
}

// Values returns a copy of the stored values, oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, len(h.values))
	copy(out, h.values)
	return out
}
