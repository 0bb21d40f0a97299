// Package fdc implements the FoodData Central search client.
//
// One search call covers one data-quality tier; the resolver fans out
// across tiers and merges. Responses are reduced to per-100g macro
// candidates; everything else in the FDC payload is ignored.
package fdc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platewise/platewise/iox"
	"github.com/platewise/platewise/types"
)

// DefaultBaseURL is the production FoodData Central endpoint.
const DefaultBaseURL = "https://api.nal.usda.gov"

// DefaultPageSize caps matches returned per tier.
const DefaultPageSize = 10

// DefaultTimeout is the default per-call timeout.
const DefaultTimeout = 10 * time.Second

// Config configures the FDC client.
type Config struct {
	// APIKey is the data.gov API key (required).
	APIKey string
	// BaseURL overrides the API endpoint (tests).
	BaseURL string
	// PageSize caps matches per tier (default 10).
	PageSize int
	// Timeout is the per-call timeout (default 10s).
	Timeout time.Duration
}

// Client queries the FoodData Central search API.
type Client struct {
	config Config
	client *http.Client
}

// NewClient creates an FDC client from the given config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("fdc client requires an API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type searchResponse struct {
	Foods []struct {
		Description   string `json:"description"`
		FoodNutrients []struct {
			NutrientName string  `json:"nutrientName"`
			UnitName     string  `json:"unitName"`
			Value        float64 `json:"value"`
		} `json:"foodNutrients"`
	} `json:"foods"`
}

// Search queries one tier for an item name and returns nutrition
// candidates with per-100g macros. An empty result is not an error;
// transport and API failures are transient lookup errors.
func (c *Client) Search(ctx context.Context, query string, tier types.Tier) ([]types.NutritionCandidate, error) {
	u := fmt.Sprintf("%s/fdc/v1/foods/search?query=%s&dataType=%s&pageSize=%d&api_key=%s",
		c.config.BaseURL,
		url.QueryEscape(query),
		url.QueryEscape(tier.DataType()),
		c.config.PageSize,
		c.config.APIKey,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, types.NewStageError(types.ErrLookup, "fdc_search", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewStageError(types.ErrLookup, "fdc_search", err)
	}
	defer iox.DrainClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewStageError(types.ErrLookup, "fdc_search", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewStageError(types.ErrLookup, "fdc_search",
			fmt.Errorf("FDC API error %d: %s", resp.StatusCode, truncate(body, 256)))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, types.NewStageError(types.ErrLookup, "fdc_search",
			fmt.Errorf("invalid FDC JSON: %w", err))
	}

	candidates := make([]types.NutritionCandidate, 0, len(sr.Foods))
	for _, food := range sr.Foods {
		if strings.TrimSpace(food.Description) == "" {
			continue
		}
		candidate := types.NutritionCandidate{
			Tier:        tier,
			Description: food.Description,
		}
		for _, n := range food.FoodNutrients {
			switch n.NutrientName {
			case "Energy":
				// FDC also reports Energy in kJ; only keep kcal.
				if strings.EqualFold(n.UnitName, "KCAL") {
					candidate.Per100g.Calories = n.Value
				}
			case "Protein":
				candidate.Per100g.Protein = n.Value
			case "Carbohydrate, by difference":
				candidate.Per100g.Carbs = n.Value
			case "Total lipid (fat)":
				candidate.Per100g.Fat = n.Value
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
