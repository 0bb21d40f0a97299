// Package gemini implements the two AI-assisted passes of the
// pipeline: food identification from a meal photo and candidate
// disambiguation against nutrition database matches.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platewise/platewise/iox"
)

// DefaultBaseURL is the production Generative Language endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultModel is the model used for both passes.
const DefaultModel = "gemini-2.5-flash"

// DefaultTimeout is the default per-call timeout. It must stay well
// under the job's end-to-end budget so a slow model call cannot hold a
// dedup claim indefinitely.
const DefaultTimeout = 30 * time.Second

// Config configures the Gemini client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string
	// Model overrides the model name.
	Model string
	// BaseURL overrides the API endpoint (tests).
	BaseURL string
	// Timeout is the per-call timeout (default 30s).
	Timeout time.Duration
}

// Client calls the Gemini generateContent API.
type Client struct {
	config Config
	client *http.Client
}

// NewClient creates a Gemini client from the given config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini client requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// generate sends one generateContent request and returns the first
// candidate's text.
func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
		"generationConfig": map[string]any{
			"temperature":     0.2,
			"maxOutputTokens": 2048,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.config.BaseURL, c.config.Model, c.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: call: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func imagePart(imageBytes []byte) part {
	return part{InlineData: &inlineData{
		MimeType: sniffMime(imageBytes),
		Data:     base64.StdEncoding.EncodeToString(imageBytes),
	}}
}

// sniffMime distinguishes the two photo formats Telegram serves.
func sniffMime(b []byte) string {
	if len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}) {
		return "image/png"
	}
	return "image/jpeg"
}
