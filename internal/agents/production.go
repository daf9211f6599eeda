package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/talgya/clipwright/internal/bridge"
)

const (
	productionHistory   = 10
	megaClipperWeight   = 10  // one mega clipper counts as this many clippers
	trendScale          = 0.1 // weight of the long-window clip trend
	unaffordablePenalty = -10
)

// Production buys clip makers and makes clips by hand.
type Production struct {
	clips      *History
	composite  float64
	seenFleet  bool
	lastAction string
	counters   []Counter
}

// NewProduction creates a production strategy with empty history.
func NewProduction() *Production {
	return &Production{
		clips:      NewHistory(productionHistory),
		lastAction: Wait,
	}
}

func (p *Production) Name() string { return "production" }

func (p *Production) Actions() []string {
	return []string{MakePaperclip, MakeClipper, MakeMegaClipper, Wait}
}

func (p *Production) State(ctx context.Context, obs bridge.Observer) string {
	clips := obs.Read(ctx, bridge.Clips)
	clippers := obs.Read(ctx, bridge.Clippers)
	mega := obs.Read(ctx, bridge.MegaClippers)
	rate := obs.Read(ctx, bridge.ClipMakerRate)

	return fmt.Sprintf("prod_clips_%d_auto_%d_mega_%d_rate_%d",
		bucket(clips, 100, 50),
		bucket(clippers, 10, 20),
		bucket(mega, 5, 10),
		bucket(rate, 10, 20),
	)
}

// RecordAction remembers the executed action for the affordability penalty.
func (p *Production) RecordAction(action string) {
	p.lastAction = action
}

// LastAction returns the most recently executed action.
func (p *Production) LastAction() string {
	return p.lastAction
}

func (p *Production) Reward(ctx context.Context, obs bridge.Observer) float64 {
	clips := obs.Read(ctx, bridge.Clips)
	clippers := obs.Read(ctx, bridge.Clippers)
	mega := obs.Read(ctx, bridge.MegaClippers)
	rate := obs.Read(ctx, bridge.ClipMakerRate)

	p.clips.Push(clips)
	p.counters = []Counter{
		{Name: "clips", Value: clips},
		{Name: "clippers", Value: clippers},
		{Name: "mega_clippers", Value: mega},
		{Name: "production_rate", Value: rate},
	}

	immediate := immediateReward(p.clips, rate)
	fleet := p.fleetReward(clippers, mega)
	trend := trendReward(p.clips)

	penalty := 0.0
	if isPurchase(p.lastAction) && !p.canAffordLast(ctx, obs) {
		penalty = unaffordablePenalty
	}

	return immediate + fleet + trend + penalty
}

func (p *Production) Counters() []Counter {
	return p.counters
}

// fleetReward is the change in the weighted producer count since the
// previous reward. The first observation only sets the baseline.
func (p *Production) fleetReward(clippers, mega float64) float64 {
	composite := clippers + megaClipperWeight*mega
	delta := 0.0
	if p.seenFleet {
		delta = composite - p.composite
	}
	p.composite = composite
	p.seenFleet = true
	return delta
}

func (p *Production) canAffordLast(ctx context.Context, obs bridge.Observer) bool {
	costReading := bridge.ClipperCost
	if p.lastAction == MakeMegaClipper {
		costReading = bridge.MegaClipperCost
	}
	return CanAfford(
		obs.Read(ctx, bridge.Funds),
		obs.Read(ctx, bridge.WireCost),
		obs.Read(ctx, costReading),
	)
}

// CanAfford reports whether buying at cost still leaves enough funds for
// one spool of wire.
func CanAfford(funds, wireCost, cost float64) bool {
	return funds-cost >= wireCost
}

func isPurchase(action string) bool {
	return action == MakeClipper || action == MakeMegaClipper
}

// immediateReward is the clip gain over the last tick beyond what the
// clip makers produce on their own, floored at 0.
func immediateReward(clips *History, rate float64) float64 {
	cur, ok := clips.Back(1)
	prev, ok2 := clips.Back(2)
	if !ok || !ok2 {
		return 0
	}
	return math.Max(cur-prev-rate, 0)
}

// trendReward is the scaled average clip gain across the whole window.
func trendReward(clips *History) float64 {
	if clips.Len() < 2 {
		return 0
	}
	first, _ := clips.Oldest()
	last, _ := clips.Back(1)
	return (last - first) / float64(clips.Len()) * trendScale
}
