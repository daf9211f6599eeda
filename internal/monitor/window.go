package monitor

// Point is one sample of a series.
type Point struct {
	Iteration uint64  `json:"iteration"`
	Value     float64 `json:"value"`
}

// Window is a fixed-capacity rolling series; the oldest point is evicted
// first.
type Window struct {
	max    int
	points []Point
}

// NewWindow creates a window holding at most max points.
func NewWindow(max int) *Window {
	if max < 1 {
		max = 1
	}
	return &Window{max: max, points: make([]Point, 0, max)}
}

// Add appends a point, evicting the oldest when full.
func (w *Window) Add(p Point) {
	if len(w.points) == w.max {
		copy(w.points, w.points[1:])
		w.points = w.points[:w.max-1]
	}
	w.points = append(w.points, p)
}

// Len returns the number of points held.
func (w *Window) Len() int { return len(w.points) }

// Points returns a copy of the points, oldest first.
func (w *Window) Points() []Point {
	out := make([]Point, len(w.points))
	copy(out, w.points)
	return out
}
