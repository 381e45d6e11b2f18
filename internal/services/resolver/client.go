// Package resolver is the client of the source-resolution backend: it turns
// a content identifier into a playable URL, synchronously or through a
// pollable job.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/config"
)

// Client talks to the source-resolution backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new resolver client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.ResolverURL == "" {
		return nil, fmt.Errorf("resolver URL is required")
	}
	if cfg.ResolverAPIKey == "" {
		return nil, fmt.Errorf("resolver API key is required")
	}

	return &Client{
		baseURL: cfg.ResolverURL,
		apiKey:  cfg.ResolverAPIKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}, nil
}

// doJSON executes one JSON request and decodes the response into out
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doJSONRetry retries a one-shot request a few times on transport errors.
// The poll loop does NOT use this: it counts consecutive failures itself.
func (c *Client) doJSONRetry(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	op := func() error {
		return c.doJSON(ctx, method, path, body, out)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2), ctx)

	return backoff.Retry(op, policy)
}
