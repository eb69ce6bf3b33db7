package conflict

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PatternSummary aggregates a product's conflict history over a period.
// Operators use it to tune detection thresholds and default strategies;
// it carries no correctness weight.
type PatternSummary struct {
	ProductID       uuid.UUID       `json:"product_id"`
	ConflictCount   int             `json:"conflict_count"`
	MeanDiscrepancy decimal.Decimal `json:"mean_discrepancy"`
	DominantType    Type            `json:"dominant_type"`
	ManualReviews   int             `json:"manual_reviews"`
}

// AnalyzePatterns summarizes conflicts per product. Results are ordered by
// conflict count descending, ties by product ID for stable output.
func AnalyzePatterns(conflicts []*SyncConflict) []PatternSummary {
	type acc struct {
		count      int
		total      decimal.Decimal
		typeCounts map[Type]int
		manual     int
	}

	byProduct := make(map[uuid.UUID]*acc)
	for _, c := range conflicts {
		a, ok := byProduct[c.ProductID]
		if !ok {
			a = &acc{typeCounts: make(map[Type]int)}
			byProduct[c.ProductID] = a
		}
		a.count++
		a.total = a.total.Add(c.Discrepancy)
		a.typeCounts[c.Type]++
		if c.Status == StatusManualReview {
			a.manual++
		}
	}

	summaries := make([]PatternSummary, 0, len(byProduct))
	for productID, a := range byProduct {
		summaries = append(summaries, PatternSummary{
			ProductID:       productID,
			ConflictCount:   a.count,
			MeanDiscrepancy: a.total.Div(decimal.NewFromInt(int64(a.count))).Round(2),
			DominantType:    dominantType(a.typeCounts),
			ManualReviews:   a.manual,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].ConflictCount != summaries[j].ConflictCount {
			return summaries[i].ConflictCount > summaries[j].ConflictCount
		}
		return summaries[i].ProductID.String() < summaries[j].ProductID.String()
	})
	return summaries
}

func dominantType(counts map[Type]int) Type {
	var dominant Type
	best := -1
	// Deterministic iteration over a fixed type order
	for _, t := range []Type{TypeStockMismatch, TypePriceMismatch, TypeOverselling, TypeDuplicateSale} {
		if counts[t] > best {
			best = counts[t]
			dominant = t
		}
	}
	return dominant
}
