package agents

import (
	"context"
	"fmt"

	"github.com/talgya/clipwright/internal/bridge"
)

const (
	demandBaseline = 50
	demandScale    = 10

	unsoldHigh        = 1000
	unsoldHighPenalty = 0.01
	unsoldMid         = 500
	unsoldMidPenalty  = 0.005

	fundsGainScale = 0.1
	priceHistory   = 10
)

// Price moves the per-clip price to keep demand up and stock moving.
type Price struct {
	funds    *History
	counters []Counter
}

// NewPrice creates a price strategy with empty history.
func NewPrice() *Price {
	return &Price{funds: NewHistory(priceHistory)}
}

func (p *Price) Name() string { return "price" }

func (p *Price) Actions() []string {
	return []string{RaisePrice, LowerPrice, Wait}
}

func (p *Price) State(ctx context.Context, obs bridge.Observer) string {
	price := obs.Read(ctx, bridge.Price)
	demand := obs.Read(ctx, bridge.Demand)
	unsold := obs.Read(ctx, bridge.UnsoldClips)

	return fmt.Sprintf("price_%d_demand_%d_unsold_%d",
		bucket(price, 0.01, 50),
		bucket(demand, 1, 10),
		bucket(unsold, 100, 20),
	)
}

func (p *Price) Reward(ctx context.Context, obs bridge.Observer) float64 {
	price := obs.Read(ctx, bridge.Price)
	demand := obs.Read(ctx, bridge.Demand)
	unsold := obs.Read(ctx, bridge.UnsoldClips)
	funds := obs.Read(ctx, bridge.Funds)

	p.funds.Push(funds)
	p.counters = []Counter{
		{Name: "price", Value: price},
		{Name: "demand", Value: demand},
		{Name: "unsold", Value: unsold},
	}

	return demandTerm(demand) + unsoldPenalty(unsold) + fundsGainBonus(p.funds)
}

func (p *Price) Counters() []Counter {
	return p.counters
}

// DemandLevel labels demand for display.
func DemandLevel(demand float64) string {
	switch {
	case demand > 70:
		return "High"
	case demand > 40:
		return "Medium"
	}
	return "Low"
}

// demandTerm is positive above the baseline demand and negative below it.
func demandTerm(demand float64) float64 {
	return (demand - demandBaseline) / demandScale
}

// unsoldPenalty grows with stock left on the shelf above two tiers.
func unsoldPenalty(unsold float64) float64 {
	switch {
	case unsold > unsoldHigh:
		return -unsold * unsoldHighPenalty
	case unsold > unsoldMid:
		return -unsold * unsoldMidPenalty
	}
	return 0
}

// fundsGainBonus rewards funds gained since the previous observation.
func fundsGainBonus(funds *History) float64 {
	cur, ok := funds.Back(1)
	prev, ok2 := funds.Back(2)
	if !ok || !ok2 || cur <= prev {
		return 0
	}
	return (cur - prev) * fundsGainScale
}
