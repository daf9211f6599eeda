package gardener

import "fmt"

// Control actions the steward can take.
const (
	ActionNone  = "none"
	ActionStop  = "stop"
	ActionStart = "start"
	ActionSave  = "save"
	ActionDelay = "delay"
)

// Decision is the steward's chosen action for one cycle.
type Decision struct {
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
	DelayMS   int64  `json:"delay_ms,omitempty"`
}

// Decide picks zero or one control action. Rules are checked in priority
// order: resume a run the steward paused, pause on a failing bridge,
// recover stalled saves, then slow down a flaky bridge.
func Decide(p Policy, snap *RunSnapshot, h *RunHealth, mem *CycleMemory) Decision {
	st := snap.Status

	if st.Paused {
		if streak := mem.PausedByStewardStreak(); streak > 0 {
			if streak >= p.ResumeAfter {
				return Decision{Action: ActionStart, Rationale: fmt.Sprintf("paused for %d cycles, retrying the bridge", streak)}
			}
			return Decision{Action: ActionNone, Rationale: "cooling down after pausing"}
		}
		return Decision{Action: ActionNone, Rationale: "paused by operator"}
	}

	if h.FailureRate >= p.CriticalFailureRate {
		return Decision{
			Action:    ActionStop,
			Rationale: fmt.Sprintf("%.1f observer failures per iteration", h.FailureRate),
		}
	}

	if h.LastSaveFailed || (st.CheckpointEvery > 0 && h.ItersSinceSave > p.SaveLag*st.CheckpointEvery) {
		return Decision{
			Action:    ActionSave,
			Rationale: fmt.Sprintf("%d iterations since the last good save", h.ItersSinceSave),
		}
	}

	if h.FailureRate >= p.WarningFailureRate && st.TickDelayMS < p.MaxDelayMS {
		next := st.TickDelayMS * 2
		if next == 0 {
			next = 100
		}
		if next > p.MaxDelayMS {
			next = p.MaxDelayMS
		}
		return Decision{
			Action:    ActionDelay,
			DelayMS:   next,
			Rationale: fmt.Sprintf("%.1f observer failures per iteration, slowing ticks", h.FailureRate),
		}
	}

	return Decision{Action: ActionNone, Rationale: "run healthy"}
}
