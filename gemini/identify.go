package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/platewise/platewise/types"
)

// Identification is the validated output of the identification pass.
type Identification struct {
	// Items are the candidates that passed schema validation.
	Items []types.FoodItemCandidate
	// Dropped counts model outputs discarded by validation
	// (empty name or non-positive mass). Reported, not a failure.
	Dropped int
}

type identifyResponse struct {
	Items []types.FoodItemCandidate `json:"items"`
}

// Identify runs the identification pass on a meal photo.
//
// The model is asked for a strict JSON item list. An unparseable
// response gets one internal retry with a stricter prompt; if that
// also fails, or the validated list is empty, the job is
// unidentifiable and the error is terminal.
func (c *Client) Identify(ctx context.Context, imageBytes []byte) (*Identification, error) {
	img := imagePart(imageBytes)

	text, err := c.generate(ctx, []part{{Text: identifyPrompt}, img})
	if err != nil {
		// Transport-level failure, not a model refusal: let the queue retry.
		return nil, types.NewStageError(types.ErrModel, "identify", err)
	}

	ident, parseErr := parseIdentification(text)
	if parseErr != nil {
		text, err = c.generate(ctx, []part{{Text: identifyStrictPrompt}, img})
		if err != nil {
			return nil, types.NewStageError(types.ErrModel, "identify_retry", err)
		}
		ident, parseErr = parseIdentification(text)
		if parseErr != nil {
			return nil, types.NewStageError(types.ErrIdentification, "identify",
				fmt.Errorf("unparseable after strict retry: %w", parseErr))
		}
	}

	if len(ident.Items) == 0 {
		return nil, types.NewStageError(types.ErrIdentification, "identify",
			errors.New("no identifiable food in image"))
	}
	return ident, nil
}

// parseIdentification decodes and validates one model response.
// Invalid items are dropped with a count; only a fully undecodable
// payload is an error here.
func parseIdentification(text string) (*Identification, error) {
	cleaned := stripFences(text)

	var resp identifyResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("invalid identification JSON: %w", err)
	}

	ident := &Identification{Items: make([]types.FoodItemCandidate, 0, len(resp.Items))}
	for _, item := range resp.Items {
		item.Name = strings.TrimSpace(item.Name)
		if !item.Valid() {
			ident.Dropped++
			continue
		}
		ident.Items = append(ident.Items, item)
	}
	return ident, nil
}

// stripFences removes a markdown code fence the model sometimes wraps
// around JSON despite instructions.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
