// Package subtitles is the client of the subtitle-search collaborator.
package subtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/config"
	"github.com/lmercadier/binger/internal/models"
)

// SearchRequest describes the content to find subtitles for
type SearchRequest struct {
	ContentID    string             `json:"contentId"`
	Title        string             `json:"title"`
	Year         int                `json:"year,omitempty"`
	Type         models.ContentType `json:"type"`
	Season       *int               `json:"season,omitempty"`
	Episode      *int               `json:"episode,omitempty"`
	LanguageCode string             `json:"languageCode,omitempty"`
	Force        bool               `json:"force,omitempty"`
}

// Client talks to the subtitle-search service. Results are cached per
// content and language so repeated track-set changes do not refetch.
type Client struct {
	baseURL    string
	httpClient *http.Client
	results    *cache.Cache
	logger     *logrus.Logger
}

// NewClient creates a new subtitle-search client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: cfg.SubtitleSearchURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		results: cache.New(15*time.Minute, 30*time.Minute),
		logger:  logger,
	}
}

// Search returns external subtitle descriptors for a content unit
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]models.SubtitleDescriptor, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	key := req.ContentID + "|" + req.LanguageCode
	if !req.Force {
		if cached, ok := c.results.Get(key); ok {
			return cached.([]models.SubtitleDescriptor), nil
		}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("subtitle search failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var descriptors []models.SubtitleDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.results.Set(key, descriptors, cache.DefaultExpiration)

	c.logger.WithFields(logrus.Fields{
		"content_id": req.ContentID,
		"language":   req.LanguageCode,
		"count":      len(descriptors),
	}).Debug("Subtitle search completed")

	return descriptors, nil
}
