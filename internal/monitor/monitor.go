// Package monitor is the read-only observation surface. It drains the
// coordinator's snapshot channel on its own schedule, keeps rolling
// windows per series, renders them as charts and exports them as
// Prometheus metrics. Nothing here ever blocks the learning loop.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/talgya/clipwright/internal/engine"
)

// Agents lists agent names in tick order.
var Agents = []string{"production", "resource", "price"}

// Series names recorded for every agent in addition to its counters.
const (
	SeriesReward      = "reward"
	SeriesExploration = "exploration"
)

// Defaults.
const (
	DefaultWindow = 200
	DefaultPoll   = 100 * time.Millisecond
)

// Monitor consumes snapshots and serves the latest view of the run.
type Monitor struct {
	source <-chan engine.Snapshot
	window int
	poll   time.Duration

	mu     sync.RWMutex
	latest *engine.Snapshot
	series map[string]map[string]*Window // agent → series → window
	order  map[string][]string           // series names per agent, first-seen order

	received *atomic.Uint64
	metrics  *metrics
}

// New creates a monitor reading from source. Non-positive window or poll
// fall back to the defaults.
func New(source <-chan engine.Snapshot, window int, poll time.Duration) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Monitor{
		source:   source,
		window:   window,
		poll:     poll,
		series:   make(map[string]map[string]*Window),
		order:    make(map[string][]string),
		received: atomic.NewUint64(0),
		metrics:  newMetrics(),
	}
}

// Registry exposes the monitor's Prometheus registry.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.metrics.registry
}

// WatchCounter exports a monotonic counter read from fn at scrape time.
func (m *Monitor) WatchCounter(name, help string, fn func() uint64) error {
	return m.metrics.registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

// Run polls the snapshot channel until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	slog.Info("monitor started", "poll", m.poll, "window", m.window)
	for {
		select {
		case <-ctx.Done():
			m.Drain()
			return
		case <-ticker.C:
			m.Drain()
		}
	}
}

// Drain applies every snapshot currently queued and returns how many it
// consumed.
func (m *Monitor) Drain() int {
	n := 0
	for {
		select {
		case s := <-m.source:
			m.Apply(s)
			n++
		default:
			return n
		}
	}
}

// Apply records one snapshot.
func (m *Monitor) Apply(s engine.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := s
	m.latest = &snap
	for _, name := range Agents {
		b := s.Block(name)
		if b == nil {
			continue
		}
		m.add(name, SeriesReward, s.Iteration, b.Reward)
		m.add(name, SeriesExploration, s.Iteration, b.Exploration)
		for _, c := range b.Counters {
			m.add(name, c.Name, s.Iteration, c.Value)
		}
	}
	m.metrics.observe(s)
	m.received.Inc()
}

func (m *Monitor) add(agent, series string, iteration uint64, v float64) {
	byName, ok := m.series[agent]
	if !ok {
		byName = make(map[string]*Window)
		m.series[agent] = byName
	}
	w, ok := byName[series]
	if !ok {
		w = NewWindow(m.window)
		byName[series] = w
		m.order[agent] = append(m.order[agent], series)
	}
	w.Add(Point{Iteration: iteration, Value: v})
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() (engine.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return engine.Snapshot{}, false
	}
	return *m.latest, true
}

// Received returns how many snapshots have been applied.
func (m *Monitor) Received() uint64 {
	return m.received.Load()
}

// Series returns a copy of one rolling window, oldest first.
func (m *Monitor) Series(agent, series string) []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.series[agent][series]
	if !ok {
		return nil
	}
	return w.Points()
}

// SeriesNames returns the series recorded for agent in first-seen order.
func (m *Monitor) SeriesNames(agent string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order[agent]...)
}
