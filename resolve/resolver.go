// Package resolve turns one identified food item into resolved
// nutrition: a concurrent per-tier database fan-out, a merged
// deduplicated candidate set, and an AI-assisted disambiguation pass
// with a tier-rank tie-break.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/metrics"
	"github.com/platewise/platewise/types"
)

// DefaultTierTimeout bounds each per-tier database call.
const DefaultTierTimeout = 10 * time.Second

// Lookup queries one data-quality tier of the nutrition database.
type Lookup interface {
	Search(ctx context.Context, query string, tier types.Tier) ([]types.NutritionCandidate, error)
}

// Picker selects the best-matching candidate for an item, returning a
// zero-based index or a negative value for no preference.
type Picker interface {
	Pick(ctx context.Context, item types.FoodItemCandidate, candidates []types.NutritionCandidate) (int, error)
}

// Config configures a Resolver.
type Config struct {
	// Lookup is the nutrition database client (required).
	Lookup Lookup
	// Picker is the disambiguation client (required).
	Picker Picker
	// TierTimeout bounds each tier query (default 10s).
	TierTimeout time.Duration
	// Collector records lookup metrics. Optional.
	Collector *metrics.Collector
	// Logger is the job-scoped logger. Optional.
	Logger *log.Logger
}

// Resolver resolves identified items against the nutrition database.
// Safe for concurrent use across items.
type Resolver struct {
	config Config
}

// NewResolver creates a Resolver from the given config.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Lookup == nil {
		return nil, errors.New("resolver requires a lookup client")
	}
	if cfg.Picker == nil {
		return nil, errors.New("resolver requires a picker client")
	}
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = DefaultTierTimeout
	}
	return &Resolver{config: cfg}, nil
}

// Resolve runs the full per-item algorithm. A failed tier does not
// abort the others; the item fails only when the merged candidate set
// ends up empty. The returned nutrition always carries the identified
// mass estimate, scaled from the winner's per-100g macros.
func (r *Resolver) Resolve(ctx context.Context, item types.FoodItemCandidate) (types.ResolvedNutrition, error) {
	merged, lookupErrs := r.fanOut(ctx, item.Name)

	if len(merged) == 0 {
		if len(lookupErrs) > 0 {
			// Nothing usable and at least one tier was unreachable:
			// classify as transient so the job can retry.
			return types.ResolvedNutrition{}, types.NewStageError(types.ErrLookup, "resolve",
				fmt.Errorf("item %q: all tiers empty, %d failed: %w", item.Name, len(lookupErrs), errors.Join(lookupErrs...)))
		}
		return types.ResolvedNutrition{}, types.NewStageError(types.ErrResolution, "resolve",
			fmt.Errorf("no database match for %q", item.Name))
	}

	winner := r.disambiguate(ctx, item, merged)

	return types.ResolvedNutrition{
		ItemName:    item.Name,
		Description: winner.Description,
		Tier:        winner.Tier,
		Grams:       item.Grams,
		Macros:      winner.Per100g.Scale(item.Grams / 100),
	}, nil
}

// fanOut queries every tier concurrently and merges the results into a
// deduplicated set with deterministic order: tier query order first,
// then response order within a tier.
func (r *Resolver) fanOut(ctx context.Context, query string) ([]types.NutritionCandidate, []error) {
	perTier := make([][]types.NutritionCandidate, len(types.AllTiers))
	errs := make([]error, len(types.AllTiers))

	var wg sync.WaitGroup
	for i, tier := range types.AllTiers {
		wg.Add(1)
		go func(i int, tier types.Tier) {
			defer wg.Done()

			tierCtx, cancel := context.WithTimeout(ctx, r.config.TierTimeout)
			defer cancel()

			r.config.Collector.IncLookupCall()
			candidates, err := r.config.Lookup.Search(tierCtx, query, tier)
			if err != nil {
				r.config.Collector.IncLookupFailure()
				errs[i] = err
				return
			}
			perTier[i] = candidates
		}(i, tier)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []types.NutritionCandidate
	for _, candidates := range perTier {
		for _, c := range candidates {
			key := c.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, c)
		}
	}

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return merged, failed
}

// disambiguate asks the picker for the best match and falls back to
// the tier-rank tie-break when the model expresses no preference or
// the call fails. A picker failure never fails the item: a candidate
// set exists, so a defensible winner always does.
func (r *Resolver) disambiguate(ctx context.Context, item types.FoodItemCandidate, candidates []types.NutritionCandidate) types.NutritionCandidate {
	idx, err := r.config.Picker.Pick(ctx, item, candidates)
	if err != nil {
		if r.config.Logger != nil {
			r.config.Logger.Warn("disambiguation call failed, using tier tie-break", map[string]any{
				"item":  item.Name,
				"error": err.Error(),
			})
		}
		idx = -1
	}
	if idx >= 0 && idx < len(candidates) {
		return candidates[idx]
	}
	return tieBreak(candidates)
}

// tieBreak prefers the highest-quality tier
// (foundation > legacy > survey), first candidate among equals.
func tieBreak(candidates []types.NutritionCandidate) types.NutritionCandidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Tier.Rank() > best.Tier.Rank() {
			best = c
		}
	}
	return best
}
