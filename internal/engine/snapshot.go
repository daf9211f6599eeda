package engine

import (
	"time"

	"github.com/talgya/clipwright/internal/agents"
)

// Outcome is the record of one agent tick.
type Outcome struct {
	Agent       string           `json:"agent"`
	State       string           `json:"state"`
	Action      string           `json:"action"`
	Success     bool             `json:"success"`
	NextState   string           `json:"next_state"`
	Reward      float64          `json:"reward"`
	Exploration float64          `json:"exploration"`
	States      int              `json:"states"`
	Counters    []agents.Counter `json:"counters"`
}

// Block is one agent's part of a Snapshot.
type Block struct {
	Counters    []agents.Counter `json:"counters"`
	Action      string           `json:"action"`
	Success     bool             `json:"success"`
	Reward      float64          `json:"reward"`
	Exploration float64          `json:"exploration"`
	States      int              `json:"states"`
}

// Snapshot is the immutable per-iteration payload pushed to the monitoring
// surface. A nil block means that agent produced no update.
type Snapshot struct {
	Iteration  uint64    `json:"iteration"`
	Time       time.Time `json:"time"`
	Production *Block    `json:"production,omitempty"`
	Resource   *Block    `json:"resource,omitempty"`
	Price      *Block    `json:"price,omitempty"`
}

// Block returns the block for the named agent, or nil.
func (s Snapshot) Block(agent string) *Block {
	switch agent {
	case "production":
		return s.Production
	case "resource":
		return s.Resource
	case "price":
		return s.Price
	}
	return nil
}

func newSnapshot(iteration uint64, now time.Time, outcomes []Outcome) Snapshot {
	snap := Snapshot{Iteration: iteration, Time: now}
	for _, o := range outcomes {
		counters := make([]agents.Counter, len(o.Counters))
		copy(counters, o.Counters)
		b := &Block{
			Counters:    counters,
			Action:      o.Action,
			Success:     o.Success,
			Reward:      o.Reward,
			Exploration: o.Exploration,
			States:      o.States,
		}
		switch o.Agent {
		case "production":
			snap.Production = b
		case "resource":
			snap.Resource = b
		case "price":
			snap.Price = b
		}
	}
	return snap
}
