package gemini

import (
	"fmt"
	"strings"

	"github.com/platewise/platewise/types"
)

const identifyPrompt = `Identify the food items in this meal photo. For each item, estimate its weight in grams.

Respond with ONLY a JSON object of this exact shape, no introductory text and no markdown:
{"items":[{"name":"cooked chicken breast","grams":170},{"name":"broccoli florets","grams":160}]}

Rules:
- "name" is a short food description without quantities or packaging.
- "grams" is the estimated edible weight as a number.
- If no food is identifiable in the image, respond with {"items":[]}.`

const identifyStrictPrompt = identifyPrompt + `

Your previous response could not be parsed. Output the raw JSON object only: no markdown fences, no commentary, nothing before the opening brace or after the closing brace.`

// pickerPrompt builds the disambiguation prompt: the model selects the
// database entry that best matches what the user ate.
func pickerPrompt(item types.FoodItemCandidate, candidates []types.NutritionCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a nutrition expert. The user ate '%s' (about %.0fg). "+
		"I found the following entries in the USDA database. "+
		"Which one is the best and most accurate match? "+
		"Respond with only the number of the best option.\n\n",
		item.Name, item.Grams)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, c.Description, c.Tier)
	}
	return b.String()
}
