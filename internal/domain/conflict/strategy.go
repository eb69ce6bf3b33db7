package conflict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Strategy names a resolution algorithm
type Strategy string

const (
	StrategyLastWriteWins Strategy = "last_write_wins"
	StrategySourcePriority Strategy = "source_priority"
	StrategyConservative  Strategy = "conservative_approach"
	StrategyAggregate     Strategy = "aggregate_approach"
	StrategyIntelligent   Strategy = "intelligent_merge"
	StrategyManualReview  Strategy = "manual_review"
)

// IsValid returns true if the strategy name is known
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyLastWriteWins, StrategySourcePriority, StrategyConservative,
		StrategyAggregate, StrategyIntelligent, StrategyManualReview:
		return true
	default:
		return false
	}
}

// AggregateMethod selects the reduction used by aggregate_approach
type AggregateMethod string

const (
	AggregateAverage AggregateMethod = "average"
	AggregateMedian  AggregateMethod = "median"
)

// Options carries caller-supplied strategy parameters
type Options struct {
	// SourcePriority is an ordered list of channel types, highest priority
	// first. Required for source_priority.
	SourcePriority []string
	// AggregateMethod selects average or median for aggregate_approach.
	// Defaults to average.
	AggregateMethod AggregateMethod
}

// Resolution is the outcome of applying a strategy to an observation set
type Resolution struct {
	Strategy Strategy
	// Value is the authoritative quantity. Nil when manual intervention is required.
	Value *decimal.Decimal
	// Reason is a human-readable explanation of how the value was chosen
	Reason string
	// Confidence is set by intelligent_merge: the normalized reliability mass
	// behind the result, in [0,1]
	Confidence *decimal.Decimal
	// RequiresManualIntervention is true when no value could be chosen
	RequiresManualIntervention bool
}

// Resolve applies a strategy to an observation set. Strategies are pure:
// identical inputs always produce the identical resolved value. Ties on
// equal timestamps are broken by the smallest channel ID string so that
// resolution stays deterministic under map iteration and retries.
func Resolve(strategy Strategy, observations []Observation, opts Options) (*Resolution, error) {
	if len(observations) == 0 {
		return nil, ErrNoObservations
	}

	switch strategy {
	case StrategyLastWriteWins:
		return resolveLastWriteWins(observations), nil
	case StrategySourcePriority:
		return resolveSourcePriority(observations, opts), nil
	case StrategyConservative:
		return resolveConservative(observations), nil
	case StrategyAggregate:
		return resolveAggregate(observations, opts), nil
	case StrategyIntelligent:
		return resolveIntelligentMerge(observations), nil
	case StrategyManualReview:
		return &Resolution{
			Strategy:                   StrategyManualReview,
			Reason:                     "Flagged for manual review; no automatic value chosen",
			RequiresManualIntervention: true,
		}, nil
	default:
		return nil, ErrUnknownStrategy
	}
}

// sortForRecency orders observations newest first, ties broken by channel ID
func sortForRecency(observations []Observation) []Observation {
	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ReportedAt.Equal(sorted[j].ReportedAt) {
			return sorted[i].ReportedAt.After(sorted[j].ReportedAt)
		}
		return sorted[i].ChannelID.String() < sorted[j].ChannelID.String()
	})
	return sorted
}

func resolveLastWriteWins(observations []Observation) *Resolution {
	latest := sortForRecency(observations)[0]
	value := latest.Quantity.Copy()
	return &Resolution{
		Strategy: StrategyLastWriteWins,
		Value:    &value,
		Reason: fmt.Sprintf("Most recent report wins: %s from %s channel at %s",
			value.String(), latest.ChannelType, latest.ReportedAt.UTC().Format("2006-01-02T15:04:05Z")),
	}
}

func resolveSourcePriority(observations []Observation, opts Options) *Resolution {
	rank := make(map[string]int, len(opts.SourcePriority))
	for i, channelType := range opts.SourcePriority {
		rank[strings.ToUpper(channelType)] = i
	}

	best := -1
	bestRank := len(opts.SourcePriority)
	byRecency := sortForRecency(observations)
	for i, o := range byRecency {
		r, ok := rank[strings.ToUpper(o.ChannelType)]
		if !ok {
			continue
		}
		// byRecency order already breaks rank ties by most recent timestamp
		if r < bestRank {
			bestRank = r
			best = i
		}
	}
	if best < 0 {
		// No observed channel appears in the priority list; fall back to recency
		fallback := resolveLastWriteWins(observations)
		fallback.Strategy = StrategySourcePriority
		fallback.Reason = "No observation matched the priority list; " + fallback.Reason
		return fallback
	}

	chosen := byRecency[best]
	value := chosen.Quantity.Copy()
	return &Resolution{
		Strategy: StrategySourcePriority,
		Value:    &value,
		Reason: fmt.Sprintf("Highest-priority source wins: %s from %s channel (priority %d)",
			value.String(), chosen.ChannelType, bestRank+1),
	}
}

func resolveConservative(observations []Observation) *Resolution {
	value := minQuantity(observations).Copy()
	return &Resolution{
		Strategy: StrategyConservative,
		Value:    &value,
		Reason: fmt.Sprintf("Minimum reported value %s chosen across %d channels to prevent overselling",
			value.String(), len(observations)),
	}
}

func resolveAggregate(observations []Observation, opts Options) *Resolution {
	method := opts.AggregateMethod
	if method == "" {
		method = AggregateAverage
	}

	var value decimal.Decimal
	if method == AggregateMedian {
		quantities := make([]decimal.Decimal, len(observations))
		for i, o := range observations {
			quantities[i] = o.Quantity
		}
		sort.Slice(quantities, func(i, j int) bool { return quantities[i].LessThan(quantities[j]) })
		mid := len(quantities) / 2
		if len(quantities)%2 == 1 {
			value = quantities[mid]
		} else {
			value = quantities[mid-1].Add(quantities[mid]).Div(decimal.NewFromInt(2))
		}
	} else {
		sum := decimal.Zero
		for _, o := range observations {
			sum = sum.Add(o.Quantity)
		}
		value = sum.Div(decimal.NewFromInt(int64(len(observations))))
	}

	// Inventory is counted in whole units
	value = value.Round(0)
	return &Resolution{
		Strategy: StrategyAggregate,
		Value:    &value,
		Reason: fmt.Sprintf("Aggregate (%s) of %d reported values, rounded to %s",
			method, len(observations), value.String()),
	}
}

func resolveIntelligentMerge(observations []Observation) *Resolution {
	weightedSum := decimal.Zero
	reliabilityMass := decimal.Zero
	for _, o := range observations {
		weightedSum = weightedSum.Add(o.Quantity.Mul(o.Reliability))
		reliabilityMass = reliabilityMass.Add(o.Reliability)
	}

	if reliabilityMass.IsZero() {
		// Every channel has zero reliability; nothing trustworthy to merge
		return &Resolution{
			Strategy:                   StrategyIntelligent,
			Reason:                     "All observations carry zero reliability; manual review required",
			RequiresManualIntervention: true,
		}
	}

	value := weightedSum.Div(reliabilityMass).Round(0)
	confidence := reliabilityMass.Div(decimal.NewFromInt(int64(len(observations)))).Round(4)
	return &Resolution{
		Strategy:   StrategyIntelligent,
		Value:      &value,
		Confidence: &confidence,
		Reason: fmt.Sprintf("Reliability-weighted average of %d channels resolved to %s (confidence %s)",
			len(observations), value.String(), confidence.String()),
	}
}
