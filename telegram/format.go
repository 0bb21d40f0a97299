package telegram

import (
	"fmt"
	"strings"

	"github.com/platewise/platewise/types"
)

// NoFoodMessage is sent when the vision model finds nothing edible.
const NoFoodMessage = "Sorry, I couldn't identify any food in the image. Please try another one."

// FormatSummary renders the human-readable meal breakdown sent back to
// the user: the resolved item list, the unresolved count when the
// result is partial, and the macro totals.
func FormatSummary(items []types.ResolvedNutrition, summary *types.MealSummary) string {
	var b strings.Builder
	b.WriteString("Nutrition for your meal:\n")

	for _, item := range items {
		fmt.Fprintf(&b, "- %s (%sg)\n", item.ItemName, trimFloat(item.Grams))
	}
	if summary.Unresolved > 0 {
		noun := "items"
		if summary.Unresolved == 1 {
			noun = "item"
		}
		fmt.Fprintf(&b, "(%d %s could not be matched)\n", summary.Unresolved, noun)
	}

	fmt.Fprintf(&b, "\n- Calories: %s\n", trimFloat(round2(summary.Totals.Calories)))
	fmt.Fprintf(&b, "- Protein: %sg\n", trimFloat(round2(summary.Totals.Protein)))
	fmt.Fprintf(&b, "- Carbs: %sg\n", trimFloat(round2(summary.Totals.Carbs)))
	fmt.Fprintf(&b, "- Fat: %sg", trimFloat(round2(summary.Totals.Fat)))
	return b.String()
}

// FormatDailyReport renders the daily totals message.
func FormatDailyReport(day string, totals types.Macros, meals int) string {
	if meals == 0 {
		return fmt.Sprintf("No meals were logged on %s. No report generated.", day)
	}
	return fmt.Sprintf(
		"Daily report for %s (%d meals):\n- Calories: %s\n- Protein: %sg\n- Carbs: %sg\n- Fat: %sg",
		day, meals,
		trimFloat(round2(totals.Calories)),
		trimFloat(round2(totals.Protein)),
		trimFloat(round2(totals.Carbs)),
		trimFloat(round2(totals.Fat)),
	)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// trimFloat formats without trailing zeros ("170", "12.5").
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
