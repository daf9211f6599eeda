package agents

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clipwright/internal/bridge"
	"github.com/talgya/clipwright/internal/qlearn"
)

// fakeGame is an in-memory Observer and Actuator.
type fakeGame struct {
	values  map[bridge.Reading]float64
	accept  map[string]bool
	invoked []string
}

func newFakeGame() *fakeGame {
	return &fakeGame{values: make(map[bridge.Reading]float64), accept: make(map[string]bool)}
}

func (g *fakeGame) Read(_ context.Context, r bridge.Reading) float64 { return g.values[r] }

func (g *fakeGame) IsInvokable(_ context.Context, action string) bool {
	return action == bridge.Wait || g.accept[action]
}

func (g *fakeGame) Invoke(ctx context.Context, action string) bool {
	g.invoked = append(g.invoked, action)
	return g.IsInvokable(ctx, action)
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	_, ok := h.Back(1)
	assert.False(t, ok)

	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.Push(v)
	}
	assert.Equal(t, []float64{3, 4, 5}, h.Values())

	last, _ := h.Back(1)
	prev, _ := h.Back(2)
	oldest, _ := h.Oldest()
	assert.Equal(t, 5.0, last)
	assert.Equal(t, 4.0, prev)
	assert.Equal(t, 3.0, oldest)
	_, ok = h.Back(4)
	assert.False(t, ok)
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, bucket(99, 100, 50))
	assert.Equal(t, 1, bucket(100, 100, 50))
	assert.Equal(t, 50, bucket(1e9, 100, 50))
	assert.Equal(t, 0, bucket(-5, 100, 50))
	assert.Equal(t, 29, bucket(0.29, 0.01, 50))
	assert.Equal(t, 7, bucket(0.07, 0.01, 50))
	assert.Equal(t, 4, ratioBucket(50, 11, 1, 10))
}

func TestImmediateReward(t *testing.T) {
	h := NewHistory(10)
	for _, v := range []float64{20, 60, 100, 150} {
		h.Push(v)
	}
	assert.Equal(t, 20.0, immediateReward(h, 30))
	assert.Equal(t, 0.0, immediateReward(h, 80), "floored at zero")
}

func TestProductionState(t *testing.T) {
	g := newFakeGame()
	g.values[bridge.Clips] = 1234
	g.values[bridge.Clippers] = 25
	g.values[bridge.MegaClippers] = 60
	g.values[bridge.ClipMakerRate] = 57

	p := NewProduction()
	key := p.State(context.Background(), g)
	assert.Equal(t, "prod_clips_12_auto_2_mega_10_rate_5", key)
	assert.Equal(t, key, p.State(context.Background(), g), "same readings give same key")
}

func TestProductionReward(t *testing.T) {
	ctx := context.Background()
	g := newFakeGame()
	p := NewProduction()

	g.values[bridge.Clips] = 100
	g.values[bridge.Clippers] = 2
	g.values[bridge.ClipMakerRate] = 30
	assert.Equal(t, 0.0, p.Reward(ctx, g), "first observation only sets baselines")

	g.values[bridge.Clips] = 150
	g.values[bridge.Clippers] = 3
	g.values[bridge.MegaClippers] = 1
	// immediate 150-100-30 = 20, fleet (3+10)-2 = 11, trend (150-100)/2*0.1 = 2.5
	assert.InDelta(t, 33.5, p.Reward(ctx, g), 1e-9)

	assert.Equal(t, []Counter{
		{Name: "clips", Value: 150},
		{Name: "clippers", Value: 3},
		{Name: "mega_clippers", Value: 1},
		{Name: "production_rate", Value: 30},
	}, p.Counters())
}

func TestProductionUnaffordablePurchasePenalty(t *testing.T) {
	ctx := context.Background()
	g := newFakeGame()
	g.values[bridge.Funds] = 20
	g.values[bridge.WireCost] = 15
	g.values[bridge.ClipperCost] = 10
	g.values[bridge.MegaClipperCost] = 2

	p := NewProduction()
	p.RecordAction(MakeClipper)
	assert.Equal(t, -10.0, p.Reward(ctx, g), "20-10 < 15")

	p.RecordAction(MakeMegaClipper)
	assert.Equal(t, 0.0, p.Reward(ctx, g), "20-2 >= 15")

	p.RecordAction(MakePaperclip)
	g.values[bridge.Funds] = 0
	assert.Equal(t, 0.0, p.Reward(ctx, g), "not a purchase")
}

func TestCanAfford(t *testing.T) {
	assert.True(t, CanAfford(100, 20, 80))
	assert.False(t, CanAfford(100, 20, 81))
}

func TestResourceState(t *testing.T) {
	g := newFakeGame()
	g.values[bridge.Wire] = 1500
	g.values[bridge.Funds] = 50
	g.values[bridge.WireCost] = 11

	assert.Equal(t, "res_wire_15_funds_0_ratio_4", NewResource().State(context.Background(), g))

	g.values[bridge.WireCost] = 0
	assert.Equal(t, "res_wire_15_funds_0_ratio_0", NewResource().State(context.Background(), g))
}

func TestWireBandPenalty(t *testing.T) {
	low, high := wireBandPenalty(50)
	assert.Equal(t, -30.0, low)
	assert.Equal(t, 0.0, high)

	low, high = wireBandPenalty(700)
	assert.Equal(t, -10.0, low)
	assert.Equal(t, 0.0, high)

	low, high = wireBandPenalty(5000)
	assert.Zero(t, low+high)

	_, high = wireBandPenalty(20000)
	assert.Equal(t, -10.0, high)
	_, high = wireBandPenalty(200000)
	assert.Equal(t, -30.0, high)
}

func TestResourceReward(t *testing.T) {
	ctx := context.Background()
	g := newFakeGame()
	r := NewResource()

	g.values[bridge.Wire] = 900
	g.values[bridge.Funds] = 60
	g.values[bridge.WireCost] = 10
	assert.Equal(t, 10.0, r.Reward(ctx, g), "ratio 6 > 5")

	g.values[bridge.Wire] = 1900
	g.values[bridge.Funds] = 30
	// ratio 3 → +5, stock gain 1000*0.1 → +100
	assert.InDelta(t, 105.0, r.Reward(ctx, g), 1e-9)

	g.values[bridge.Wire] = 50
	g.values[bridge.Funds] = 0
	assert.Equal(t, -30.0, r.Reward(ctx, g))
}

func TestPriceState(t *testing.T) {
	g := newFakeGame()
	g.values[bridge.Price] = 0.25
	g.values[bridge.Demand] = 80
	g.values[bridge.UnsoldClips] = 730

	assert.Equal(t, "price_25_demand_10_unsold_7", NewPrice().State(context.Background(), g))
}

func TestDemandTerm(t *testing.T) {
	assert.Equal(t, 3.0, demandTerm(80))
	assert.Equal(t, -5.0, demandTerm(0))
}

func TestPriceReward(t *testing.T) {
	ctx := context.Background()
	g := newFakeGame()
	p := NewPrice()

	g.values[bridge.Price] = 0.05
	g.values[bridge.Demand] = 80
	g.values[bridge.UnsoldClips] = 600
	g.values[bridge.Funds] = 10
	// 3.0 - 600*0.005
	assert.InDelta(t, 0.0, p.Reward(ctx, g), 1e-9)

	g.values[bridge.Price] = 0.50
	g.values[bridge.UnsoldClips] = 2000
	g.values[bridge.Funds] = 30
	// 3.0 - 20 + (30-10)*0.1
	assert.InDelta(t, -15.0, p.Reward(ctx, g), 1e-9)

	g.values[bridge.UnsoldClips] = 0
	g.values[bridge.Funds] = 5
	assert.InDelta(t, 3.0, p.Reward(ctx, g), 1e-9, "funds loss earns nothing")
}

func TestDemandLevel(t *testing.T) {
	assert.Equal(t, "High", DemandLevel(90))
	assert.Equal(t, "Medium", DemandLevel(50))
	assert.Equal(t, "Low", DemandLevel(10))
	assert.Equal(t, "Medium", DemandLevel(70), "percent scale, upper bound exclusive")
	assert.Equal(t, "Low", DemandLevel(40))
}

func TestAgentExecute(t *testing.T) {
	g := newFakeGame()
	g.accept[MakePaperclip] = true
	p := NewProduction()
	a := New(p, qlearn.DefaultConfig(), rand.New(rand.NewSource(1)), "", g, g)
	ctx := context.Background()

	assert.True(t, a.Execute(ctx, Wait))
	assert.Empty(t, g.invoked, "wait never reaches the game")
	assert.Equal(t, Wait, p.LastAction())

	assert.True(t, a.Execute(ctx, MakePaperclip))
	assert.False(t, a.Execute(ctx, MakeClipper))
	assert.Equal(t, []string{MakePaperclip, MakeClipper}, g.invoked)
	assert.Equal(t, MakeClipper, p.LastAction(), "failed attempts are still recorded")
}

func TestAgentLearnAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q_table_price.json")
	g := newFakeGame()
	cfg := qlearn.DefaultConfig()

	a := New(NewPrice(), cfg, rand.New(rand.NewSource(1)), path, g, g)
	require.NoError(t, a.Learn("s0", Wait, 5, "s1"))
	assert.Less(t, a.Engine().ExplorationRate(), cfg.ExplorationRate)
	require.ErrorIs(t, a.Learn("s0", BuyWire, 1, "s1"), qlearn.ErrUnknownAction)
	require.NoError(t, a.Save())

	b := New(NewPrice(), cfg, rand.New(rand.NewSource(1)), path, g, g)
	v, err := b.Engine().Value("s0", Wait)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)
}

func TestNonFiniteReadingsNeverReachTheTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q_table_price.json")
	g := newFakeGame()
	for _, r := range []bridge.Reading{bridge.Price, bridge.Demand, bridge.UnsoldClips, bridge.Funds} {
		g.values[r] = math.NaN()
	}
	a := New(NewPrice(), qlearn.DefaultConfig(), rand.New(rand.NewSource(1)), path, g, g)
	ctx := context.Background()

	state := a.Observe(ctx)
	require.True(t, a.Execute(ctx, Wait))
	next := a.Observe(ctx)
	reward := a.Reward(ctx)
	require.True(t, math.IsNaN(reward))
	require.ErrorIs(t, a.Learn(state, Wait, reward, next), qlearn.ErrNonFiniteReward)

	v, err := a.Engine().Value(state, Wait)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
	require.NoError(t, a.Save())
}

func TestResourceCountersIncludeFundsRatio(t *testing.T) {
	g := newFakeGame()
	g.values[bridge.Wire] = 900
	g.values[bridge.Funds] = 60
	g.values[bridge.WireCost] = 10

	r := NewResource()
	r.Reward(context.Background(), g)
	assert.Equal(t, Counter{Name: "funds_wire_ratio", Value: 5}, r.Counters()[3])
}
