// Package aggregate folds per-item resolution outcomes into a single
// meal summary under a partial-success policy: failed items are
// counted, not fatal, unless every item failed.
package aggregate

import (
	"errors"
	"fmt"

	"github.com/platewise/platewise/types"
)

// Outcome is the result of resolving one identified item. Exactly one
// of Resolved and Err is set.
type Outcome struct {
	Item     types.FoodItemCandidate
	Resolved *types.ResolvedNutrition
	Err      error
}

// Summarize sums resolved items into meal totals. The summary's
// ItemCount covers resolved items only; Unresolved counts failures.
// Order of outcomes does not affect totals. An empty input or a fully
// failed meal yields an aggregation error carrying the item failures.
func Summarize(outcomes []Outcome) (*types.MealSummary, []types.ResolvedNutrition, error) {
	if len(outcomes) == 0 {
		return nil, nil, types.NewStageError(types.ErrAggregation, "aggregate",
			errors.New("no item outcomes"))
	}

	summary := &types.MealSummary{}
	var resolved []types.ResolvedNutrition
	var failures []error

	for _, o := range outcomes {
		if o.Err != nil {
			summary.Unresolved++
			failures = append(failures, fmt.Errorf("%s: %w", o.Item.Name, o.Err))
			continue
		}
		summary.Totals = summary.Totals.Add(o.Resolved.Macros)
		summary.ItemCount++
		resolved = append(resolved, *o.Resolved)
	}

	if summary.ItemCount == 0 {
		return nil, nil, types.NewStageError(types.ErrAggregation, "aggregate",
			fmt.Errorf("all %d items failed: %w", len(outcomes), errors.Join(failures...)))
	}
	return summary, resolved, nil
}
