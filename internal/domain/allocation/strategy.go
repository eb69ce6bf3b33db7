package allocation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy selects how allocatable stock is split across channels
type Strategy string

const (
	StrategyEqualDistribution Strategy = "equal_distribution"
	StrategyPriorityBased     Strategy = "priority_based"
	StrategyPerformanceBased  Strategy = "performance_based"
	StrategyDemandBased       Strategy = "demand_based"
	StrategyCustomRules       Strategy = "custom_rules"
)

var (
	ErrUnknownStrategy = errors.New("allocation: unknown allocation strategy")
	ErrNoChannels      = errors.New("allocation: no channels to allocate to")
	ErrNoWeights       = errors.New("allocation: custom rules require at least one positive weight")
)

// ChannelInput carries the per-channel signals a strategy may consume.
// Priority follows the channel aggregate's convention: lower is higher.
// Cap limits a channel's share under priority_based; zero means uncapped.
type ChannelInput struct {
	ChannelID      uuid.UUID
	Priority       int
	SalesVelocity  decimal.Decimal
	ForecastDemand decimal.Decimal
	Cap            decimal.Decimal
	Weight         decimal.Decimal
}

// PlanLine is a computed allocation for one channel
type PlanLine struct {
	ChannelID uuid.UUID       `json:"channel_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Plan is the output of a strategy run, ready for ApplyPlan
type Plan struct {
	Strategy Strategy   `json:"strategy"`
	Lines    []PlanLine `json:"lines"`
}

func (p Plan) lineFor(channelID uuid.UUID) *PlanLine {
	for i := range p.Lines {
		if p.Lines[i].ChannelID == channelID {
			return &p.Lines[i]
		}
	}
	return nil
}

// ComputePlan distributes total whole units across channels. The same
// inputs always produce the same plan: ties are broken by channel ID so
// concurrent recomputations converge.
func ComputePlan(strategy Strategy, total decimal.Decimal, channels []ChannelInput) (Plan, error) {
	if len(channels) == 0 {
		return Plan{}, ErrNoChannels
	}
	total = total.RoundDown(0)
	if total.IsNegative() {
		return Plan{}, ErrInvalidQuantity
	}

	switch strategy {
	case StrategyEqualDistribution:
		return planEqual(total, channels), nil
	case StrategyPriorityBased:
		return planPriority(total, channels), nil
	case StrategyPerformanceBased:
		return planProportional(strategy, total, channels, func(c ChannelInput) decimal.Decimal {
			return c.SalesVelocity
		}), nil
	case StrategyDemandBased:
		return planProportional(strategy, total, channels, func(c ChannelInput) decimal.Decimal {
			return c.ForecastDemand
		}), nil
	case StrategyCustomRules:
		return planCustom(total, channels)
	default:
		return Plan{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

// planEqual gives every channel floor(total/n); leftover whole units go one
// each to the earliest channels in ID order.
func planEqual(total decimal.Decimal, channels []ChannelInput) Plan {
	ordered := sortedByID(channels)
	n := decimal.NewFromInt(int64(len(ordered)))
	base := total.Div(n).RoundDown(0)
	leftover := total.Sub(base.Mul(n)).IntPart()

	lines := make([]PlanLine, 0, len(ordered))
	for i, c := range ordered {
		qty := base
		if int64(i) < leftover {
			qty = qty.Add(decimal.NewFromInt(1))
		}
		lines = append(lines, PlanLine{ChannelID: c.ChannelID, Quantity: qty})
	}
	return Plan{Strategy: StrategyEqualDistribution, Lines: lines}
}

// planPriority fills channels in priority order, each up to its cap, until
// the pool is exhausted. An uncapped channel absorbs everything remaining.
func planPriority(total decimal.Decimal, channels []ChannelInput) Plan {
	ordered := make([]ChannelInput, len(channels))
	copy(ordered, channels)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ChannelID.String() < ordered[j].ChannelID.String()
	})

	remaining := total
	lines := make([]PlanLine, 0, len(ordered))
	for _, c := range ordered {
		qty := remaining
		if c.Cap.IsPositive() && qty.GreaterThan(c.Cap) {
			qty = c.Cap
		}
		lines = append(lines, PlanLine{ChannelID: c.ChannelID, Quantity: qty})
		remaining = remaining.Sub(qty)
	}
	return Plan{Strategy: StrategyPriorityBased, Lines: lines}
}

// planProportional splits total by weight share. Fractional units are
// assigned by largest remainder, ties by channel ID. With no positive
// weight at all (cold start) it degrades to an equal split.
func planProportional(strategy Strategy, total decimal.Decimal, channels []ChannelInput, weight func(ChannelInput) decimal.Decimal) Plan {
	ordered := sortedByID(channels)
	sum := decimal.Zero
	for _, c := range ordered {
		if w := weight(c); w.IsPositive() {
			sum = sum.Add(w)
		}
	}
	if sum.IsZero() {
		plan := planEqual(total, channels)
		plan.Strategy = strategy
		return plan
	}

	type share struct {
		channelID uuid.UUID
		whole     decimal.Decimal
		frac      decimal.Decimal
	}
	shares := make([]share, 0, len(ordered))
	assigned := decimal.Zero
	for _, c := range ordered {
		w := weight(c)
		if w.IsNegative() {
			w = decimal.Zero
		}
		exact := total.Mul(w).Div(sum)
		whole := exact.RoundDown(0)
		shares = append(shares, share{channelID: c.ChannelID, whole: whole, frac: exact.Sub(whole)})
		assigned = assigned.Add(whole)
	}

	leftover := total.Sub(assigned).IntPart()
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := shares[order[i]], shares[order[j]]
		if !a.frac.Equal(b.frac) {
			return a.frac.GreaterThan(b.frac)
		}
		return a.channelID.String() < b.channelID.String()
	})
	for k := int64(0); k < leftover; k++ {
		shares[order[k%int64(len(order))]].whole = shares[order[k%int64(len(order))]].whole.Add(decimal.NewFromInt(1))
	}

	lines := make([]PlanLine, 0, len(shares))
	for _, s := range shares {
		lines = append(lines, PlanLine{ChannelID: s.channelID, Quantity: s.whole})
	}
	return Plan{Strategy: strategy, Lines: lines}
}

func planCustom(total decimal.Decimal, channels []ChannelInput) (Plan, error) {
	any := false
	for _, c := range channels {
		if c.Weight.IsPositive() {
			any = true
			break
		}
	}
	if !any {
		return Plan{}, ErrNoWeights
	}
	plan := planProportional(StrategyCustomRules, total, channels, func(c ChannelInput) decimal.Decimal {
		return c.Weight
	})
	return plan, nil
}

func sortedByID(channels []ChannelInput) []ChannelInput {
	ordered := make([]ChannelInput, len(channels))
	copy(ordered, channels)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ChannelID.String() < ordered[j].ChannelID.String()
	})
	return ordered
}
