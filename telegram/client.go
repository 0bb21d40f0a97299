// Package telegram wraps the Bot API surface the pipeline needs:
// downloading a photo by file token and sending text messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/platewise/platewise/iox"
	"github.com/platewise/platewise/types"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// DefaultTimeout is the default per-call timeout.
const DefaultTimeout = 30 * time.Second

// maxImageBytes caps a downloaded photo. Bot API photos are at most
// 20 MB; anything larger is a protocol violation.
const maxImageBytes = 20 * 1024 * 1024

// Config configures the Telegram client.
type Config struct {
	// Token is the bot token (required).
	Token string
	// BaseURL overrides the API endpoint (tests).
	BaseURL string
	// Timeout is the per-call timeout (default 30s).
	Timeout time.Duration
}

// Client talks to the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewClient creates a Telegram client from the given config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram client requires a bot token")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type getFileResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
	Description string `json:"description"`
}

// FetchImage downloads the raw bytes for a photo file token.
// Failures are classified as transient fetch errors.
func (c *Client) FetchImage(ctx context.Context, fileID string) ([]byte, error) {
	u := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", c.baseURL, c.token, url.QueryEscape(fileID))

	var meta getFileResponse
	if err := c.getJSON(ctx, u, &meta); err != nil {
		return nil, types.NewStageError(types.ErrFetch, "get_file", err)
	}
	if !meta.OK || meta.Result.FilePath == "" {
		return nil, types.NewStageError(types.ErrFetch, "get_file",
			fmt.Errorf("telegram rejected file_id: %s", meta.Description))
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, meta.Result.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, types.NewStageError(types.ErrFetch, "download", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewStageError(types.ErrFetch, "download", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewStageError(types.ErrFetch, "download",
			fmt.Errorf("telegram file API error %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, types.NewStageError(types.ErrFetch, "download", err)
	}
	if len(body) > maxImageBytes {
		return nil, types.NewStageError(types.ErrFetch, "download",
			fmt.Errorf("image exceeds %d bytes", maxImageBytes))
	}
	if len(body) == 0 {
		return nil, types.NewStageError(types.ErrFetch, "download", errors.New("empty image body"))
	}
	return body, nil
}

// SendMessage sends a plain-text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal message: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram sendMessage error %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DrainClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
