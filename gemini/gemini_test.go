package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/platewise/platewise/types"
)

// modelResponse wraps text in the generateContent response shape.
func modelResponse(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(body)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestIdentify_Success(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, modelResponse(`{"items":[{"name":"chicken breast","grams":170},{"name":"rice","grams":150}]}`))
	})

	ident, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(ident.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(ident.Items))
	}
	if ident.Items[0].Name != "chicken breast" || ident.Items[0].Grams != 170 {
		t.Errorf("unexpected first item: %+v", ident.Items[0])
	}
	if ident.Dropped != 0 {
		t.Errorf("expected no drops, got %d", ident.Dropped)
	}
}

func TestIdentify_DropsInvalidItems(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, modelResponse(`{"items":[{"name":"salmon","grams":120},{"name":"","grams":50},{"name":"mystery","grams":0}]}`))
	})

	ident, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(ident.Items) != 1 || ident.Items[0].Name != "salmon" {
		t.Errorf("expected only salmon to survive, got %+v", ident.Items)
	}
	if ident.Dropped != 2 {
		t.Errorf("expected 2 drops, got %d", ident.Dropped)
	}
}

func TestIdentify_FencedJSONAccepted(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, modelResponse("```json\n{\"items\":[{\"name\":\"toast\",\"grams\":60}]}\n```"))
	})

	ident, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(ident.Items) != 1 || ident.Items[0].Name != "toast" {
		t.Errorf("unexpected items: %+v", ident.Items)
	}
}

func TestIdentify_RetriesOnceWithStricterPrompt(t *testing.T) {
	var calls atomic.Int32
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, modelResponse("Sure! Here are the food items I can see: chicken and rice."))
			return
		}
		fmt.Fprint(w, modelResponse(`{"items":[{"name":"chicken","grams":170}]}`))
	})

	ident, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected exactly 2 calls, got %d", calls.Load())
	}
	if len(ident.Items) != 1 {
		t.Errorf("expected 1 item after retry, got %d", len(ident.Items))
	}
}

func TestIdentify_UnparseableAfterRetryIsTerminal(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, modelResponse("I cannot produce JSON right now."))
	})

	_, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if !errors.Is(err, types.ErrIdentification) {
		t.Fatalf("expected identification error, got %v", err)
	}
	if types.Retryable(err) {
		t.Error("identification failures must not be retryable")
	}
}

func TestIdentify_EmptyListIsTerminal(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, modelResponse(`{"items":[]}`))
	})

	_, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if !errors.Is(err, types.ErrIdentification) {
		t.Fatalf("expected identification error, got %v", err)
	}
}

func TestIdentify_TransportFailureIsRetryable(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Identify(t.Context(), []byte("jpeg-bytes"))
	if !errors.Is(err, types.ErrModel) {
		t.Fatalf("expected model transport error, got %v", err)
	}
	if !types.Retryable(err) {
		t.Error("model transport failures must be retryable")
	}
}

func TestPick_SingleCandidateShortCircuits(t *testing.T) {
	c := newTestGemini(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no API call expected for a single candidate")
	})

	idx, err := c.Pick(t.Context(),
		types.FoodItemCandidate{Name: "rice", Grams: 150},
		[]types.NutritionCandidate{{Tier: types.TierFoundation, Description: "Rice, white, cooked"}},
	)
	if err != nil || idx != 0 {
		t.Errorf("expected index 0, got %d (%v)", idx, err)
	}
}

func TestPick_ModelChoice(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, modelResponse("2"))
	})

	candidates := []types.NutritionCandidate{
		{Tier: types.TierSurvey, Description: "Rice, fried"},
		{Tier: types.TierFoundation, Description: "Rice, white, cooked"},
		{Tier: types.TierLegacy, Description: "Rice, brown"},
	}
	idx, err := c.Pick(t.Context(), types.FoodItemCandidate{Name: "rice", Grams: 150}, candidates)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
}

func TestParsePick(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want int
	}{
		{"plain number", "3", 5, 2},
		{"trailing period", "3.", 5, 2},
		{"whitespace", "  1\n", 5, 0},
		{"fenced", "```\n2\n```", 5, 1},
		{"out of range high", "9", 5, NoPreference},
		{"zero", "0", 5, NoPreference},
		{"prose", "The best option is 3", 5, NoPreference},
		{"empty", "", 5, NoPreference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePick(tt.text, tt.n); got != tt.want {
				t.Errorf("parsePick(%q, %d) = %d, want %d", tt.text, tt.n, got, tt.want)
			}
		})
	}
}
