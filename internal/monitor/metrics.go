package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talgya/clipwright/internal/engine"
)

const namespace = "clipwright"

type metrics struct {
	registry    *prometheus.Registry
	iteration   prometheus.Gauge
	reward      *prometheus.GaugeVec
	exploration *prometheus.GaugeVec
	states      *prometheus.GaugeVec
	counters    *prometheus.GaugeVec
	actions     *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		iteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration",
			Help:      "Last completed coordinator iteration.",
		}),
		reward: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reward",
			Help:      "Reward of the agent's last tick.",
		}, []string{"agent"}),
		exploration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exploration_rate",
			Help:      "Current epsilon of the agent's engine.",
		}, []string{"agent"}),
		states: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_states",
			Help:      "Number of states in the agent's Q-table.",
		}, []string{"agent"}),
		counters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "game_value",
			Help:      "Game readings behind the agent's last reward.",
		}, []string{"agent", "name"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions taken, by agent, action and outcome.",
		}, []string{"agent", "action", "success"}),
	}
	m.registry.MustRegister(m.iteration, m.reward, m.exploration, m.states, m.counters, m.actions)
	return m
}

func (m *metrics) observe(s engine.Snapshot) {
	m.iteration.Set(float64(s.Iteration))
	for _, name := range Agents {
		b := s.Block(name)
		if b == nil {
			continue
		}
		m.reward.WithLabelValues(name).Set(b.Reward)
		m.exploration.WithLabelValues(name).Set(b.Exploration)
		m.states.WithLabelValues(name).Set(float64(b.States))
		for _, c := range b.Counters {
			m.counters.WithLabelValues(name, c.Name).Set(c.Value)
		}
		success := "false"
		if b.Success {
			success = "true"
		}
		m.actions.WithLabelValues(name, b.Action, success).Inc()
	}
}
