package qlearn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrUnknownAction is returned when an action is not in the vocabulary.
var ErrUnknownAction = errors.New("unknown action")

// ErrNonFiniteReward is returned when a reward is NaN or infinite.
var ErrNonFiniteReward = errors.New("non-finite reward")

// Config holds the learning hyperparameters shared by every agent.
type Config struct {
	LearningRate       float64 // alpha
	DiscountFactor     float64 // gamma
	ExplorationRate    float64 // initial epsilon
	MinExplorationRate float64
	ExplorationDecay   float64 // multiplicative, per tick
}

// DefaultConfig returns the hyperparameters the agents were tuned with.
func DefaultConfig() Config {
	return Config{
		LearningRate:       0.1,
		DiscountFactor:     0.9,
		ExplorationRate:    1.0,
		MinExplorationRate: 0.01,
		ExplorationDecay:   0.995,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.LearningRate <= 0 || c.LearningRate > 1:
		return fmt.Errorf("learning rate %v outside (0, 1]", c.LearningRate)
	case c.DiscountFactor < 0 || c.DiscountFactor > 1:
		return fmt.Errorf("discount factor %v outside [0, 1]", c.DiscountFactor)
	case c.MinExplorationRate < 0 || c.MinExplorationRate > 1:
		return fmt.Errorf("min exploration rate %v outside [0, 1]", c.MinExplorationRate)
	case c.ExplorationRate < c.MinExplorationRate || c.ExplorationRate > 1:
		return fmt.Errorf("exploration rate %v outside [%v, 1]", c.ExplorationRate, c.MinExplorationRate)
	case c.ExplorationDecay <= 0 || c.ExplorationDecay > 1:
		return fmt.Errorf("exploration decay %v outside (0, 1]", c.ExplorationDecay)
	}
	return nil
}

// Engine is one learner: a vocabulary, its table and its exploration rate.
// An Engine is not safe for concurrent use; it belongs to a single worker.
type Engine struct {
	actions []string
	index   map[string]int
	table   *Table
	cfg     Config
	epsilon float64
	rng     *rand.Rand
	path    string
}

// New creates an engine over the given action vocabulary. The vocabulary
// order fixes the column order of the table and of its persisted form.
// path is the checkpoint file; an empty path disables persistence.
func New(actions []string, cfg Config, rng *rand.Rand, path string) *Engine {
	index := make(map[string]int, len(actions))
	for i, a := range actions {
		index[a] = i
	}
	vocab := make([]string, len(actions))
	copy(vocab, actions)

	return &Engine{
		actions: vocab,
		index:   index,
		table:   NewTable(len(vocab)),
		cfg:     cfg,
		epsilon: cfg.ExplorationRate,
		rng:     rng,
		path:    path,
	}
}

// Actions returns a copy of the action vocabulary.
func (e *Engine) Actions() []string {
	out := make([]string, len(e.actions))
	copy(out, e.actions)
	return out
}

// Table exposes the underlying table for inspection and tests.
func (e *Engine) Table() *Table {
	return e.table
}

// Path returns the checkpoint file path.
func (e *Engine) Path() string {
	return e.path
}

// ExplorationRate returns the current epsilon.
func (e *Engine) ExplorationRate() float64 {
	return e.epsilon
}

// ChooseAction picks a uniformly random action with probability epsilon,
// otherwise the greedy action for state.
func (e *Engine) ChooseAction(state string) string {
	row := e.table.Row(state)
	if e.rng.Float64() < e.epsilon {
		return e.actions[e.rng.Intn(len(e.actions))]
	}
	return e.actions[argmax(row)]
}

// Value returns Q(state, action).
func (e *Engine) Value(state, action string) (float64, error) {
	i, ok := e.index[action]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return e.table.Row(state)[i], nil
}

// Update applies Q(s,a) += alpha * (r + gamma * max Q(s',·) - Q(s,a)).
// A non-finite reward leaves the table untouched.
func (e *Engine) Update(state, action string, reward float64, nextState string) error {
	i, ok := e.index[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("%w: %v", ErrNonFiniteReward, reward)
	}

	next := e.table.Row(nextState)
	target := reward + e.cfg.DiscountFactor*next[argmax(next)]

	row := e.table.Row(state)
	row[i] += e.cfg.LearningRate * (target - row[i])
	return nil
}

// DecayExploration multiplies epsilon by the decay factor, floored at the
// configured minimum.
func (e *Engine) DecayExploration() {
	e.epsilon = math.Max(e.cfg.MinExplorationRate, e.epsilon*e.cfg.ExplorationDecay)
}
