package gemini

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/platewise/platewise/types"
)

// NoPreference is returned by Pick when the model expressed no usable
// preference; the caller applies its own tie-break.
const NoPreference = -1

// Pick runs the disambiguation pass: given one identified item and its
// candidate set, the model selects the best-matching candidate.
//
// Returns the zero-based index into candidates, or NoPreference when
// the response is not a valid in-range option number. Only transport
// failures are errors.
func (c *Client) Pick(ctx context.Context, item types.FoodItemCandidate, candidates []types.NutritionCandidate) (int, error) {
	if len(candidates) == 0 {
		return NoPreference, fmt.Errorf("pick: empty candidate set for %q", item.Name)
	}
	if len(candidates) == 1 {
		return 0, nil
	}

	text, err := c.generate(ctx, []part{{Text: pickerPrompt(item, candidates)}})
	if err != nil {
		return NoPreference, fmt.Errorf("pick %q: %w", item.Name, err)
	}

	return parsePick(text, len(candidates)), nil
}

// parsePick extracts the selected option number. Anything that is not
// a single in-range number counts as no preference.
func parsePick(text string, n int) int {
	s := strings.TrimSpace(stripFences(text))
	// Tolerate a trailing period ("3.").
	s = strings.TrimSuffix(s, ".")

	choice, err := strconv.Atoi(s)
	if err != nil || choice < 1 || choice > n {
		return NoPreference
	}
	return choice - 1
}
