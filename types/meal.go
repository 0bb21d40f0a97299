package types

import "strings"

// Tier is a nutrition database data-quality tier.
//
// FoodData Central partitions source data into curation tiers; the
// resolver queries each tier independently and uses tier rank as the
// disambiguation tie-break signal.
type Tier string

const (
	// TierLegacy is the SR Legacy dataset.
	TierLegacy Tier = "legacy"
	// TierFoundation is the Foundation Foods dataset (highest curation).
	TierFoundation Tier = "foundation"
	// TierSurvey is the Survey (FNDDS) dataset.
	TierSurvey Tier = "survey"
)

// AllTiers lists every tier in query order.
var AllTiers = []Tier{TierLegacy, TierFoundation, TierSurvey}

// DataType returns the FoodData Central dataType query value for the tier.
func (t Tier) DataType() string {
	switch t {
	case TierLegacy:
		return "SR Legacy"
	case TierFoundation:
		return "Foundation"
	case TierSurvey:
		return "Survey (FNDDS)"
	default:
		return string(t)
	}
}

// Rank returns the tie-break rank of the tier. Higher is better.
func (t Tier) Rank() int {
	switch t {
	case TierFoundation:
		return 3
	case TierLegacy:
		return 2
	case TierSurvey:
		return 1
	default:
		return 0
	}
}

// FoodItemCandidate is one food item identified in a meal image,
// with the model's mass estimate. Order within a meal is irrelevant
// to downstream aggregation.
type FoodItemCandidate struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams"`
}

// Valid reports whether the candidate passes the identification schema:
// non-empty name and strictly positive mass.
func (c FoodItemCandidate) Valid() bool {
	return strings.TrimSpace(c.Name) != "" && c.Grams > 0
}

// Macros holds macro-nutrient quantities. Units: kcal for Calories,
// grams for the rest.
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Add returns the sum of m and other.
func (m Macros) Add(other Macros) Macros {
	return Macros{
		Calories: m.Calories + other.Calories,
		Protein:  m.Protein + other.Protein,
		Carbs:    m.Carbs + other.Carbs,
		Fat:      m.Fat + other.Fat,
	}
}

// Scale returns m scaled by factor.
func (m Macros) Scale(factor float64) Macros {
	return Macros{
		Calories: m.Calories * factor,
		Protein:  m.Protein * factor,
		Carbs:    m.Carbs * factor,
		Fat:      m.Fat * factor,
	}
}

// NutritionCandidate is one database match for an identified item.
// Macros are per 100 g of the described food.
type NutritionCandidate struct {
	Tier        Tier   `json:"tier"`
	Description string `json:"description"`
	Per100g     Macros `json:"per_100g"`
}

// DedupKey returns the candidate-set dedup key: tier plus
// case-normalized description. Candidates are a set, not a list.
func (c NutritionCandidate) DedupKey() string {
	return string(c.Tier) + "\x00" + strings.ToLower(strings.TrimSpace(c.Description))
}

// ResolvedNutrition is the disambiguated nutrition for one identified
// item, scaled to the identified mass. Grams always carries the
// identification estimate and is never re-derived from the database.
type ResolvedNutrition struct {
	ItemName    string  `json:"item_name"`
	Description string  `json:"description"` // winning database description
	Tier        Tier    `json:"tier"`
	Grams       float64 `json:"grams"`
	Macros      Macros  `json:"macros"`
}

// MealSummary is the per-meal total over resolved items. It is derived
// state: always recomputable from its source items and never persisted
// without them.
type MealSummary struct {
	Totals     Macros `json:"totals" msgpack:"totals"`
	ItemCount  int    `json:"item_count" msgpack:"item_count"`
	Unresolved int    `json:"unresolved" msgpack:"unresolved"`
}

// Partial reports whether some items failed resolution.
func (s MealSummary) Partial() bool {
	return s.Unresolved > 0
}
