package qlearn

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testActions = []string{"btnMakePaperclip", "btnMakeClipper", "btnMakeMegaClipper", "wait"}

func greedyConfig() Config {
	cfg := DefaultConfig()
	cfg.ExplorationRate = 0
	cfg.MinExplorationRate = 0
	return cfg
}

func newTestEngine(cfg Config) *Engine {
	return New(testActions, cfg, rand.New(rand.NewSource(1)), "")
}

func TestChooseActionUnseenStateIsFirstAction(t *testing.T) {
	e := newTestEngine(greedyConfig())

	for _, state := range []string{"s0", "prod_clips_0_auto_0_mega_0_rate_0", ""} {
		assert.Equal(t, testActions[0], e.ChooseAction(state))
	}
	// Selection materializes the row as a zero vector.
	row, ok := e.Table().Lookup("s0")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 0, 0}, row)
}

func TestChooseActionGreedyTieBreaksOnFirstIndex(t *testing.T) {
	e := newTestEngine(greedyConfig())
	row := e.Table().Row("s")
	row[1] = 2
	row[3] = 2

	assert.Equal(t, "btnMakeClipper", e.ChooseAction("s"))
}

func TestChooseActionExploresWithinVocabulary(t *testing.T) {
	cfg := DefaultConfig()
	a := New(testActions, cfg, rand.New(rand.NewSource(7)), "")
	b := New(testActions, cfg, rand.New(rand.NewSource(7)), "")

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		got := a.ChooseAction("s")
		require.Equal(t, got, b.ChooseAction("s"), "same seed must give same choices")
		require.Contains(t, testActions, got)
		seen[got] = true
	}
	assert.Len(t, seen, len(testActions))
}

func TestUpdateFromEmptyTable(t *testing.T) {
	e := newTestEngine(greedyConfig())

	require.NoError(t, e.Update("s0", "wait", 5, "s1"))

	v, err := e.Value("s0", "wait")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)

	next, ok := e.Table().Lookup("s1")
	require.True(t, ok, "next state must be materialized")
	assert.Equal(t, []float64{0, 0, 0, 0}, next)

	// Only the (state, action) entry moves.
	row, _ := e.Table().Lookup("s0")
	assert.Equal(t, []float64{0, 0, 0, row[3]}, row)
}

func TestUpdateFixedPointDoesNotDrift(t *testing.T) {
	e := newTestEngine(greedyConfig())
	e.Table().Row("s")[2] = 0.9
	e.Table().Row("n")[0] = 1.0 // gamma * 1.0 == 0.9

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Update("s", "btnMakeMegaClipper", 0, "n"))
	}
	v, _ := e.Value("s", "btnMakeMegaClipper")
	assert.Equal(t, 0.9, v)
}

func TestUpdateUnknownAction(t *testing.T) {
	e := newTestEngine(greedyConfig())
	err := e.Update("s", "btnBuyWire", 1, "n")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, 0, e.Table().Len())
}

func TestUpdateRejectsNonFiniteReward(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	e := New(testActions, greedyConfig(), rand.New(rand.NewSource(1)), path)
	require.NoError(t, e.Update("s", "wait", 2, "n"))

	for _, r := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, e.Update("s", "wait", r, "n"), ErrNonFiniteReward)
	}
	v, err := e.Value("s", "wait")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-12)
	require.NoError(t, e.Save())
}

func TestDecayExploration(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(cfg)

	prev := e.ExplorationRate()
	for n := 1; n <= 2000; n++ {
		e.DecayExploration()
		got := e.ExplorationRate()
		want := math.Max(cfg.MinExplorationRate, cfg.ExplorationRate*math.Pow(cfg.ExplorationDecay, float64(n)))
		require.InDelta(t, want, got, 1e-9, "after %d decays", n)
		require.LessOrEqual(t, got, prev)
		require.GreaterOrEqual(t, got, cfg.MinExplorationRate)
		prev = got
	}
	assert.Equal(t, cfg.MinExplorationRate, e.ExplorationRate())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.LearningRate = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ExplorationDecay = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ExplorationRate = 0.001
	assert.Error(t, bad.Validate())
}
