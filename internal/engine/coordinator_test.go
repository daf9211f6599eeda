package engine

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clipwright/internal/agents"
	"github.com/talgya/clipwright/internal/bridge"
	"github.com/talgya/clipwright/internal/qlearn"
)

type fakeGame struct {
	mu      sync.Mutex
	values  map[bridge.Reading]float64
	invoked []string
}

func (g *fakeGame) Read(_ context.Context, r bridge.Reading) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values[r]
}

func (g *fakeGame) IsInvokable(context.Context, string) bool { return true }

func (g *fakeGame) Invoke(_ context.Context, action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invoked = append(g.invoked, action)
	g.values[bridge.Clips]++
	return true
}

type checkpoint struct {
	iteration uint64
	err       error
}

type memRecorder struct {
	mu          sync.Mutex
	iterations  []uint64
	outcomes    [][]Outcome
	checkpoints []checkpoint
}

func (r *memRecorder) RecordIteration(iteration uint64, outcomes []Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations = append(r.iterations, iteration)
	r.outcomes = append(r.outcomes, outcomes)
	return nil
}

func (r *memRecorder) RecordCheckpoint(iteration uint64, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints = append(r.checkpoints, checkpoint{iteration, err})
	return nil
}

func (r *memRecorder) checkpointIterations() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint64
	for _, c := range r.checkpoints {
		out = append(out, c.iteration)
	}
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *memRecorder, string) {
	t.Helper()
	dir := t.TempDir()
	g := &fakeGame{values: map[bridge.Reading]float64{
		bridge.Funds:    100,
		bridge.Wire:     1000,
		bridge.WireCost: 15,
		bridge.Demand:   50,
	}}
	mk := func(s agents.Strategy, seed int64) *agents.Agent {
		path := filepath.Join(dir, s.Name()+".json")
		return agents.New(s, qlearn.DefaultConfig(), rand.New(rand.NewSource(seed)), path, g, g)
	}
	c := New(
		mk(agents.NewProduction(), 1),
		mk(agents.NewResource(), 2),
		mk(agents.NewPrice(), 3),
	)
	c.Sleep = func(time.Duration) {}
	c.PausePoll = time.Millisecond
	rec := &memRecorder{}
	c.Recorder = rec
	return c, rec, dir
}

func TestRunTicksAgentsInOrder(t *testing.T) {
	c, rec, dir := newTestCoordinator(t)
	c.MaxIterations = 3

	c.Run(context.Background())

	assert.Equal(t, uint64(3), c.Iteration())
	assert.False(t, c.Running())
	require.Len(t, rec.outcomes, 3)
	assert.Equal(t, []uint64{1, 2, 3}, rec.iterations)
	for _, outcomes := range rec.outcomes {
		require.Len(t, outcomes, 3)
		assert.Equal(t, "production", outcomes[0].Agent)
		assert.Equal(t, "resource", outcomes[1].Agent)
		assert.Equal(t, "price", outcomes[2].Agent)
		for _, o := range outcomes {
			assert.NotEmpty(t, o.State)
			assert.NotEmpty(t, o.NextState)
			assert.Less(t, o.Exploration, 1.0, "exploration decays every tick")
		}
	}

	for _, name := range []string{"production", "resource", "price"} {
		_, err := os.Stat(filepath.Join(dir, name+".json"))
		assert.NoError(t, err, "final save writes %s", name)
	}
}

func TestRunPublishesSnapshots(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.MaxIterations = 2

	c.Run(context.Background())

	first := <-c.Snapshots()
	second := <-c.Snapshots()
	assert.Equal(t, uint64(1), first.Iteration)
	assert.Equal(t, uint64(2), second.Iteration)
	require.NotNil(t, second.Production)
	require.NotNil(t, second.Resource)
	require.NotNil(t, second.Price)
	assert.Same(t, second.Price, second.Block("price"))
	assert.Nil(t, second.Block("unknown"))
	assert.NotEmpty(t, second.Production.Counters)
}

func TestSnapshotsDropWhenConsumerIsBehind(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.MaxIterations = DefaultSnapshotBuffer + 5

	c.Run(context.Background())

	assert.Equal(t, uint64(5), c.Dropped())
	assert.Len(t, c.Snapshots(), DefaultSnapshotBuffer)
}

func TestPeriodicCheckpoints(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	require.NoError(t, c.SetCheckpointEvery(2))
	c.MaxIterations = 5

	c.Run(context.Background())

	assert.Equal(t, []uint64{2, 4, 5}, rec.checkpointIterations(), "two periodic plus the final save")
	for _, cp := range rec.checkpoints {
		assert.NoError(t, cp.err)
	}
}

func TestPauseHonoursSaveRequests(t *testing.T) {
	c, rec, dir := newTestCoordinator(t)
	c.Pause()

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, c.Running, time.Second, time.Millisecond)
	c.RequestSave()
	require.Eventually(t, func() bool {
		return len(rec.checkpointIterations()) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, uint64(0), c.Iteration(), "no ticks while paused")
	_, err := os.Stat(filepath.Join(dir, "production.json"))
	assert.NoError(t, err)

	c.Start()
	require.Eventually(t, func() bool { return c.Iteration() > 0 }, time.Second, time.Millisecond)

	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCancellationFinishesInFlightIteration(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	c.Sleep = func(time.Duration) { cancel() }

	c.Run(ctx)

	assert.Equal(t, uint64(1), c.Iteration())
	require.Len(t, rec.outcomes, 1)
	assert.Len(t, rec.outcomes[0], 3, "all agents complete the cancelled iteration")
}

func TestSleepReceivesTickDelay(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	require.NoError(t, c.SetTickDelay(5*time.Millisecond))
	var delays []time.Duration
	c.Sleep = func(d time.Duration) { delays = append(delays, d) }
	c.MaxIterations = 1

	c.Run(context.Background())

	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}, delays)
}

func TestStartIterationResumesNumbering(t *testing.T) {
	c, rec, _ := newTestCoordinator(t)
	c.SetStartIteration(10)
	c.MaxIterations = 12

	c.Run(context.Background())

	assert.Equal(t, []uint64{11, 12}, rec.iterations)
}

func TestControlValidation(t *testing.T) {
	c := New()
	assert.Error(t, c.SetTickDelay(-time.Second))
	assert.Error(t, c.SetCheckpointEvery(0))
	assert.Equal(t, DefaultTickDelay, c.TickDelay())
	assert.Equal(t, uint64(DefaultCheckpointEvery), c.CheckpointEvery())

	require.NoError(t, c.SetTickDelay(0))
	assert.Zero(t, c.TickDelay())
}
