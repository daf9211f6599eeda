package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/talgya/clipwright/internal/bridge"
)

// Healthy wire stock band. Outside the outer limits the penalty is severe,
// between the inner and outer limits it is mild.
const (
	wireSevereLow  = 100
	wireMildLow    = 800
	wireMildHigh   = 10000
	wireSevereHigh = 100000

	wireSeverePenalty = -30
	wireMildPenalty   = -10

	wireStockScale  = 0.1
	resourceHistory = 10
)

// Resource keeps the wire supply healthy.
type Resource struct {
	wire     *History
	counters []Counter
}

// NewResource creates a resource strategy with empty history.
func NewResource() *Resource {
	return &Resource{wire: NewHistory(resourceHistory)}
}

func (r *Resource) Name() string { return "resource" }

func (r *Resource) Actions() []string {
	return []string{BuyWire, Wait}
}

func (r *Resource) State(ctx context.Context, obs bridge.Observer) string {
	wire := obs.Read(ctx, bridge.Wire)
	funds := obs.Read(ctx, bridge.Funds)
	wireCost := obs.Read(ctx, bridge.WireCost)

	ratio := 0
	if wireCost > 0 {
		ratio = ratioBucket(funds, wireCost, 1, 10)
	}
	return fmt.Sprintf("res_wire_%d_funds_%d_ratio_%d",
		bucket(wire, 100, 20),
		bucket(funds, 100, 20),
		ratio,
	)
}

func (r *Resource) Reward(ctx context.Context, obs bridge.Observer) float64 {
	wire := obs.Read(ctx, bridge.Wire)
	funds := obs.Read(ctx, bridge.Funds)
	wireCost := obs.Read(ctx, bridge.WireCost)

	r.wire.Push(wire)
	r.counters = []Counter{
		{Name: "wire", Value: wire},
		{Name: "funds", Value: funds},
		{Name: "wire_cost", Value: wireCost},
		{Name: "funds_wire_ratio", Value: math.Floor(funds / (wireCost + 0.1))},
	}

	low, high := wireBandPenalty(wire)
	return low + high + fundsRatioBonus(funds, wireCost) + wireStockBonus(r.wire)
}

func (r *Resource) Counters() []Counter {
	return r.counters
}

// wireBandPenalty scores wire stock against the healthy band, split into
// the too-little and too-much components.
func wireBandPenalty(wire float64) (low, high float64) {
	switch {
	case wire < wireSevereLow:
		low = wireSeverePenalty
	case wire < wireMildLow:
		low = wireMildPenalty
	}
	switch {
	case wire > wireSevereHigh:
		high = wireSeverePenalty
	case wire > wireMildHigh:
		high = wireMildPenalty
	}
	return low, high
}

// fundsRatioBonus rewards holding several spools' worth of funds.
func fundsRatioBonus(funds, wireCost float64) float64 {
	if wireCost <= 0 {
		return 0
	}
	switch ratio := funds / wireCost; {
	case ratio > 5:
		return 10
	case ratio > 2:
		return 5
	}
	return 0
}

// wireStockBonus rewards growth of the wire stock since the last reading.
func wireStockBonus(wire *History) float64 {
	cur, ok := wire.Back(1)
	prev, ok2 := wire.Back(2)
	if !ok || !ok2 || cur <= prev {
		return 0
	}
	return (cur - prev) * wireStockScale
}
