// Package agents holds the three specialized learners that steer the game:
// production, resource and price. Each one is a Strategy (vocabulary, state
// discretization, reward shaping) composed with a generic qlearn.Engine.
package agents

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/talgya/clipwright/internal/bridge"
	"github.com/talgya/clipwright/internal/qlearn"
)

// Action identifiers. They double as the game's button element ids.
const (
	MakePaperclip   = "btnMakePaperclip"
	MakeClipper     = "btnMakeClipper"
	MakeMegaClipper = "btnMakeMegaClipper"
	BuyWire         = "btnBuyWire"
	RaisePrice      = "btnRaisePrice"
	LowerPrice      = "btnLowerPrice"
	Wait            = bridge.Wait
)

// Counter is one named value shown on the monitoring surface.
type Counter struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Strategy is the agent-specific half of a learner.
type Strategy interface {
	// Name identifies the agent in logs, files and snapshots.
	Name() string
	// Actions is the fixed, ordered action vocabulary.
	Actions() []string
	// State builds the discretized state key from current readings.
	State(ctx context.Context, obs bridge.Observer) string
	// Reward reads the game and scores the last action. It updates the
	// strategy's history buffers.
	Reward(ctx context.Context, obs bridge.Observer) float64
	// Counters returns the readings taken by the most recent Reward call.
	Counters() []Counter
}

// actionRecorder is implemented by strategies whose reward depends on the
// previously executed action.
type actionRecorder interface {
	RecordAction(action string)
}

// Agent composes a Strategy with its own engine and the shared game bridge.
type Agent struct {
	strategy Strategy
	engine   *qlearn.Engine
	obs      bridge.Observer
	act      bridge.Actuator
}

// New builds an agent and loads its table from path. A table that cannot
// be loaded is logged and replaced by an empty one.
func New(s Strategy, cfg qlearn.Config, rng *rand.Rand, path string, obs bridge.Observer, act bridge.Actuator) *Agent {
	eng := qlearn.New(s.Actions(), cfg, rng, path)
	if err := eng.Load(); err != nil {
		slog.Error("table load failed, starting empty", "agent", s.Name(), "error", err)
	}
	return &Agent{strategy: s, engine: eng, obs: obs, act: act}
}

// Name returns the strategy name.
func (a *Agent) Name() string {
	return a.strategy.Name()
}

// Engine returns the agent's learner.
func (a *Agent) Engine() *qlearn.Engine {
	return a.engine
}

// Observe returns the current state key.
func (a *Agent) Observe(ctx context.Context) string {
	return a.strategy.State(ctx, a.obs)
}

// Choose selects the next action for state.
func (a *Agent) Choose(state string) string {
	return a.engine.ChooseAction(state)
}

// Execute applies action and reports whether the game accepted it. Wait
// always succeeds without touching the game.
func (a *Agent) Execute(ctx context.Context, action string) bool {
	if r, ok := a.strategy.(actionRecorder); ok {
		r.RecordAction(action)
	}
	if action == Wait {
		return true
	}
	return a.act.Invoke(ctx, action)
}

// Reward scores the outcome of the last action.
func (a *Agent) Reward(ctx context.Context) float64 {
	return a.strategy.Reward(ctx, a.obs)
}

// Learn applies the TD update for one transition and decays exploration.
func (a *Agent) Learn(state, action string, reward float64, next string) error {
	if err := a.engine.Update(state, action, reward, next); err != nil {
		return err
	}
	a.engine.DecayExploration()
	return nil
}

// Counters returns the readings behind the last reward.
func (a *Agent) Counters() []Counter {
	return a.strategy.Counters()
}

// Save checkpoints the agent's table.
func (a *Agent) Save() error {
	return a.engine.Save()
}

// bucket discretizes v into min(floor(v/width), cap), never below 0.
// The small epsilon keeps decimal widths such as 0.01 from splitting
// exact multiples into the lower bucket.
func bucket(v, width float64, cap int) int {
	b := math.Floor(v/width + 1e-9)
	if b < 0 || math.IsNaN(b) {
		return 0
	}
	if b > float64(cap) {
		return cap
	}
	return int(b)
}

// ratioBucket discretizes num/(den+eps) the same way.
func ratioBucket(num, den, eps float64, cap int) int {
	return bucket(num, den+eps, cap)
}
