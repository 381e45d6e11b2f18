// Package telemetry is the client of the session-tracking collaborator:
// heartbeats, remote progress sync, fault logging and bandwidth tests.
// Every call here is best effort; failures never interrupt playback.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/config"
	"github.com/lmercadier/binger/internal/models"
)

// Client talks to the telemetry backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new telemetry client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: cfg.TelemetryURL,
		apiKey:  cfg.TelemetryAPIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	if c.baseURL == "" {
		return nil
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telemetry request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Heartbeat signals that a playback session is alive
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.post(ctx, "/heartbeat", nil)
}

// SyncProgress mirrors a progress record to the backend
func (c *Client) SyncProgress(ctx context.Context, record *models.ProgressRecord) error {
	return c.post(ctx, "/progress", record)
}

// LogFault records a playback fault for later analysis
func (c *Client) LogFault(ctx context.Context, contentID, code, message string) error {
	return c.post(ctx, "/faults", map[string]string{
		"contentId": contentID,
		"code":      code,
		"message":   message,
	})
}

// RunBandwidthTest triggers a one-shot bandwidth measurement and report.
// Callers fire it in a goroutine; it is never awaited by playback.
func (c *Client) RunBandwidthTest(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := c.post(ctx, "/bandwidth/test", nil); err != nil {
		c.logger.WithError(err).Debug("Bandwidth test failed")
		return err
	}

	c.logger.Debug("Bandwidth test completed")
	return nil
}
