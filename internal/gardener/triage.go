package gardener

// Crisis levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelHealthy  = "HEALTHY"
)

// RunHealth holds derived diagnostic signals computed from a RunSnapshot
// and the previous cycle.
type RunHealth struct {
	Iterations     uint64  // progressed since the previous cycle
	NewFailures    uint64  // observer failures since the previous cycle
	NewRejections  uint64  // rejected actions since the previous cycle
	FailureRate    float64 // failures per iteration in this cycle
	ItersSinceSave uint64
	LastSaveFailed bool
	Restarted      bool // counters went backwards: the learner restarted
	Level          string
}

// Policy holds the steward's thresholds.
type Policy struct {
	// Failure rates at or above Critical pause the run; at or above Warning
	// slow it down.
	CriticalFailureRate float64
	WarningFailureRate  float64
	// A run is resumed after this many cycles paused by the steward.
	ResumeAfter int
	// A save is requested when no checkpoint landed for SaveLag intervals.
	SaveLag uint64
	// Slow-down doubles the tick delay up to MaxDelayMS.
	MaxDelayMS int64
}

// DefaultPolicy returns the thresholds used by cmd/gardener.
func DefaultPolicy() Policy {
	return Policy{
		CriticalFailureRate: 5,
		WarningFailureRate:  1,
		ResumeAfter:         3,
		SaveLag:             2,
		MaxDelayMS:          2000,
	}
}

// Triage computes a RunHealth from the snapshot and the last recorded cycle.
func Triage(p Policy, snap *RunSnapshot, prev *CycleRecord) *RunHealth {
	st := snap.Status
	h := &RunHealth{Level: LevelHealthy}

	switch {
	case prev == nil || prev.RunID != st.RunID && st.RunID != "":
		h.Restarted = prev != nil
	case st.Iteration < prev.Iteration || st.ObserverFailures < prev.Failures:
		// Counter reset without a new run id; treat like a fresh start.
		h.Restarted = true
	default:
		h.Iterations = st.Iteration - prev.Iteration
		h.NewFailures = st.ObserverFailures - prev.Failures
		if st.RejectedActions >= prev.Rejected {
			h.NewRejections = st.RejectedActions - prev.Rejected
		}
	}

	if h.Iterations > 0 {
		h.FailureRate = float64(h.NewFailures) / float64(h.Iterations)
	} else if h.NewFailures > 0 {
		h.FailureRate = float64(h.NewFailures)
	}

	if snap.CheckpointLog {
		h.LastSaveFailed, h.ItersSinceSave = saveLag(snap)
	}

	switch {
	case h.FailureRate >= p.CriticalFailureRate:
		h.Level = LevelCritical
	case h.LastSaveFailed:
		h.Level = LevelCritical
	case h.FailureRate >= p.WarningFailureRate:
		h.Level = LevelWarning
	case st.CheckpointEvery > 0 && h.ItersSinceSave > p.SaveLag*st.CheckpointEvery:
		h.Level = LevelWarning
	}

	return h
}

// saveLag inspects the checkpoint log, newest first, for this run.
func saveLag(snap *RunSnapshot) (lastFailed bool, since uint64) {
	st := snap.Status
	lastGood := uint64(0)
	for _, cp := range snap.Checkpoints {
		if cp.RunID != "" && st.RunID != "" && cp.RunID != st.RunID {
			continue
		}
		if cp.OK {
			lastGood = cp.Iteration
			break
		}
	}
	if len(snap.Checkpoints) > 0 && !snap.Checkpoints[0].OK {
		lastFailed = true
	}
	if st.Iteration > lastGood {
		since = st.Iteration - lastGood
	}
	return lastFailed, since
}
