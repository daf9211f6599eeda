// Package engine runs the learning loop: every iteration ticks the
// production, resource and price agents in that order, one after another,
// on a single worker goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/talgya/clipwright/internal/agents"
)

// Defaults for the process controls.
const (
	DefaultTickDelay       = 100 * time.Millisecond
	DefaultCheckpointEvery = 100
	DefaultSnapshotBuffer  = 64
	pausePoll              = 100 * time.Millisecond
)

// Recorder receives tick history and checkpoint results. Implementations
// are called from the worker goroutine; errors are logged, never fatal.
type Recorder interface {
	RecordIteration(iteration uint64, outcomes []Outcome) error
	RecordCheckpoint(iteration uint64, saveErr error) error
}

// Coordinator owns the agents and drives their ticks.
type Coordinator struct {
	agents    []*agents.Agent
	iteration uint64

	MaxIterations uint64 // 0 = run until stopped
	Recorder      Recorder
	Sleep         func(time.Duration) // the post-action delay; time.Sleep by default
	PausePoll     time.Duration

	delay      *atomic.Duration
	checkpoint *atomic.Uint64
	paused     *atomic.Bool
	stopped    *atomic.Bool
	saveReq    *atomic.Bool
	running    *atomic.Bool
	completed  *atomic.Uint64
	dropped    *atomic.Uint64

	snapshots chan Snapshot
}

// New creates a coordinator over agents, ticked in the given order.
func New(ag ...*agents.Agent) *Coordinator {
	return &Coordinator{
		agents:     ag,
		Sleep:      time.Sleep,
		PausePoll:  pausePoll,
		delay:      atomic.NewDuration(DefaultTickDelay),
		checkpoint: atomic.NewUint64(DefaultCheckpointEvery),
		paused:     atomic.NewBool(false),
		stopped:    atomic.NewBool(false),
		saveReq:    atomic.NewBool(false),
		running:    atomic.NewBool(false),
		completed:  atomic.NewUint64(0),
		dropped:    atomic.NewUint64(0),
		snapshots:  make(chan Snapshot, DefaultSnapshotBuffer),
	}
}

// Snapshots is the single-consumer side of the snapshot handoff.
func (c *Coordinator) Snapshots() <-chan Snapshot {
	return c.snapshots
}

// SetStartIteration resumes iteration numbering from a previous run.
// It must be called before Run.
func (c *Coordinator) SetStartIteration(n uint64) {
	c.iteration = n
	c.completed.Store(n)
}

// Iteration returns the number of completed iterations.
func (c *Coordinator) Iteration() uint64 { return c.completed.Load() }

// Running reports whether Run is active.
func (c *Coordinator) Running() bool { return c.running.Load() }

// Paused reports whether ticking is suspended.
func (c *Coordinator) Paused() bool { return c.paused.Load() }

// Dropped returns how many snapshots were discarded because the consumer
// was behind.
func (c *Coordinator) Dropped() uint64 { return c.dropped.Load() }

// Start resumes ticking at the next iteration boundary.
func (c *Coordinator) Start() { c.paused.Store(false) }

// Pause suspends ticking at the next iteration boundary.
func (c *Coordinator) Pause() { c.paused.Store(true) }

// Stop ends Run after the in-flight iteration.
func (c *Coordinator) Stop() { c.stopped.Store(true) }

// RequestSave asks the worker to checkpoint all tables at the next boundary.
func (c *Coordinator) RequestSave() { c.saveReq.Store(true) }

// TickDelay returns the wait between acting and re-observing.
func (c *Coordinator) TickDelay() time.Duration { return c.delay.Load() }

// SetTickDelay changes the post-action wait.
func (c *Coordinator) SetTickDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("tick delay %v must not be negative", d)
	}
	c.delay.Store(d)
	return nil
}

// CheckpointEvery returns the checkpoint interval in iterations.
func (c *Coordinator) CheckpointEvery() uint64 { return c.checkpoint.Load() }

// SetCheckpointEvery changes the checkpoint interval.
func (c *Coordinator) SetCheckpointEvery(n uint64) error {
	if n == 0 {
		return errors.New("checkpoint interval must be positive")
	}
	c.checkpoint.Store(n)
	return nil
}

// Run ticks the agents until ctx is cancelled, Stop is called or
// MaxIterations is reached, then saves every table. Cancellation is only
// observed between iterations; calls into the game are never cut short.
func (c *Coordinator) Run(ctx context.Context) {
	c.running.Store(true)
	defer c.running.Store(false)

	// In-flight reads and clicks run to completion even after ctx ends.
	tickCtx := context.WithoutCancel(ctx)

	slog.Info("coordinator started",
		"iteration", c.iteration,
		"agents", len(c.agents),
		"tick_delay", c.TickDelay(),
		"checkpoint_every", c.CheckpointEvery(),
	)

	for !c.done(ctx) {
		if c.saveReq.Swap(false) {
			c.checkpointAll("requested")
		}

		if c.paused.Load() {
			select {
			case <-ctx.Done():
			case <-time.After(c.PausePoll):
			}
			continue
		}

		c.step(tickCtx)
	}

	slog.Info("coordinator stopping, saving tables", "iteration", c.iteration)
	c.checkpointAll("final")
}

func (c *Coordinator) done(ctx context.Context) bool {
	if ctx.Err() != nil || c.stopped.Load() {
		return true
	}
	return c.MaxIterations > 0 && c.iteration >= c.MaxIterations
}

// step runs one full iteration over all agents.
func (c *Coordinator) step(ctx context.Context) {
	outcomes := make([]Outcome, 0, len(c.agents))
	for _, a := range c.agents {
		outcomes = append(outcomes, c.tick(ctx, a))
	}

	c.iteration++
	c.completed.Store(c.iteration)

	if c.Recorder != nil {
		if err := c.Recorder.RecordIteration(c.iteration, outcomes); err != nil {
			slog.Warn("tick history not recorded", "iteration", c.iteration, "error", err)
		}
	}

	c.publish(newSnapshot(c.iteration, time.Now(), outcomes))

	if every := c.CheckpointEvery(); every > 0 && c.iteration%every == 0 {
		c.checkpointAll("periodic")
	}
}

// tick is OBSERVE → SELECT → ACT → delay → OBSERVE' → REWARD → LEARN → DECAY
// for one agent. The actuator's verdict is recorded but does not change
// the reward or the update.
func (c *Coordinator) tick(ctx context.Context, a *agents.Agent) Outcome {
	state := a.Observe(ctx)
	action := a.Choose(state)
	ok := a.Execute(ctx, action)

	c.Sleep(c.TickDelay())

	next := a.Observe(ctx)
	reward := a.Reward(ctx)
	if err := a.Learn(state, action, reward, next); err != nil {
		slog.Error("update failed", "agent", a.Name(), "error", err)
	}

	slog.Debug("tick",
		"iteration", c.iteration+1,
		"agent", a.Name(),
		"state", state,
		"action", action,
		"success", ok,
		"reward", reward,
	)

	return Outcome{
		Agent:       a.Name(),
		State:       state,
		Action:      action,
		Success:     ok,
		NextState:   next,
		Reward:      reward,
		Exploration: a.Engine().ExplorationRate(),
		States:      a.Engine().Table().Len(),
		Counters:    a.Counters(),
	}
}

// publish hands a snapshot to the consumer without ever blocking.
func (c *Coordinator) publish(s Snapshot) {
	select {
	case c.snapshots <- s:
	default:
		c.dropped.Inc()
	}
}

// checkpointAll saves every table. Failures are logged and reported to the
// recorder; the loop carries on.
func (c *Coordinator) checkpointAll(reason string) {
	var errs []error
	for _, a := range c.agents {
		if err := a.Save(); err != nil {
			slog.Error("table save failed", "agent", a.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	err := errors.Join(errs...)
	if err == nil {
		slog.Info("tables saved", "reason", reason, "iteration", c.iteration)
	}

	if c.Recorder != nil {
		if rerr := c.Recorder.RecordCheckpoint(c.iteration, err); rerr != nil {
			slog.Warn("checkpoint not recorded", "iteration", c.iteration, "error", rerr)
		}
	}
}
