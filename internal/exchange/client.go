// Package exchange talks to the OpenRouter-compatible inference endpoint:
// one request per user turn, carrying the full message history, abortable
// through the request context.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sandy-backend/internal/models"
)

// ErrMissingCredential is returned before any network I/O when no API key is
// available for the call.
var ErrMissingCredential = errors.New("no API key provided; add your API key in your profile settings")

// ErrCancelled marks a user-aborted exchange. A cancelled request is a
// distinct terminal outcome from a failed one and must not surface as an
// error notification.
var ErrCancelled = errors.New("exchange cancelled")

type Client struct {
	baseURL    string
	defaultKey string
	referer    string
	appTitle   string
	httpClient *http.Client
}

// NewClient builds a client against baseURL (e.g. "https://openrouter.ai/api/v1").
// defaultKey is the server-wide fallback credential; it may be empty, in
// which case every call must carry a user key.
func NewClient(baseURL, defaultKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		defaultKey: defaultKey,
		referer:    "https://sandygpt.app",
		appTitle:   "Sandy GPT",
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message models.Message `json:"message"`
	} `json:"choices"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Exchange sends the full history (the newly appended user turn included) and
// returns the single assistant message. credential overrides the default key
// when non-empty. Cancelling ctx aborts the in-flight request and yields
// ErrCancelled.
func (c *Client) Exchange(ctx context.Context, modelID string, history []models.Message, credential string) (*models.Message, error) {
	key := credential
	if key == "" {
		key = c.defaultKey
	}
	if key == "" {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(chatRequest{Model: modelID, Messages: history})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.appTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&eb); decodeErr == nil && eb.Error.Message != "" {
			return nil, errors.New(eb.Error.Message)
		}
		return nil, fmt.Errorf("failed to send message (status %d)", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, errors.New("inference endpoint returned no choices")
	}

	msg := cr.Choices[0].Message
	return &msg, nil
}

// ValidateCredential checks a key against the provider's auth-introspection
// path. Any network failure counts as invalid.
func (c *Client) ValidateCredential(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/key", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
