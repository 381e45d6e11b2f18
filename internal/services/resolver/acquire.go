package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/models"
)

// StartRequest asks the backend to resolve a playable source for a title
type StartRequest struct {
	ContentID string             `json:"contentId"`
	Title     string             `json:"title"`
	Year      int                `json:"year,omitempty"`
	Type      models.ContentType `json:"type"`
	Season    *int               `json:"season,omitempty"`
	Episode   *int               `json:"episode,omitempty"`
}

// StartResponse is either an immediate source or a job to poll
type StartResponse struct {
	Immediate bool `json:"immediate"`

	// Immediate only
	URL            string                      `json:"url,omitempty"`
	FileName       string                      `json:"fileName,omitempty"`
	DisplayQuality string                      `json:"displayQuality,omitempty"`
	Subtitles      []models.SubtitleDescriptor `json:"subtitles,omitempty"`
	NextContent    *models.NextContent         `json:"nextContentHint,omitempty"`
	SkipMarkers    []models.SkipMarker         `json:"skipMarkers,omitempty"`

	// Async only
	JobID string `json:"jobId,omitempty"`
}

// PollResponse is one job status observation
type PollResponse struct {
	Status   string  `json:"status"` // searching|downloading|completed|failed|error
	Progress float64 `json:"progressPercent"`
	Message  string  `json:"message,omitempty"`

	// Completed only
	URL            string                      `json:"url,omitempty"`
	FileName       string                      `json:"fileName,omitempty"`
	DisplayQuality string                      `json:"displayQuality,omitempty"`
	Subtitles      []models.SubtitleDescriptor `json:"subtitles,omitempty"`
	NextContent    *models.NextContent         `json:"nextContentHint,omitempty"`
	SkipMarkers    []models.SkipMarker         `json:"skipMarkers,omitempty"`

	SuggestBandwidthRetest bool `json:"suggestBandwidthRetest,omitempty"`
}

// ReportResponse answers a bad-stream report with a superseding job
type ReportResponse struct {
	Success  bool   `json:"success"`
	NewJobID string `json:"newJobId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// FallbackRequest asks for a lower-quality source for the same content
type FallbackRequest struct {
	ContentID              string             `json:"contentId"`
	Type                   models.ContentType `json:"type"`
	CurrentDurationMinutes int                `json:"currentDurationMinutes"`
	CurrentBitrate         *int               `json:"currentBitrate,omitempty"`
}

// FallbackResponse carries the fallback URL, empty when none is available
type FallbackResponse struct {
	URL            string `json:"url,omitempty"`
	DisplayQuality string `json:"displayQuality,omitempty"`
	JobID          string `json:"jobId,omitempty"`
}

// Start begins source resolution for a title
func (c *Client) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	c.logger.WithFields(logrus.Fields{
		"content_id": req.ContentID,
		"title":      req.Title,
		"type":       req.Type,
	}).Info("Starting source resolution")

	var resp StartResponse
	if err := c.doJSONRetry(ctx, http.MethodPost, "/acquire", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to start acquisition: %w", err)
	}

	if !resp.Immediate && resp.JobID == "" {
		return nil, fmt.Errorf("backend returned neither a URL nor a job")
	}
	return &resp, nil
}

// Poll retrieves one job status observation. Callers count consecutive
// failures themselves; this method does not retry.
func (c *Client) Poll(ctx context.Context, jobID string) (*PollResponse, error) {
	var resp PollResponse
	if err := c.doJSON(ctx, http.MethodGet, "/acquire/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to poll job %s: %w", jobID, err)
	}
	return &resp, nil
}

// ReportBadStream reports a dead or broken source and requests a
// superseding job for the same content
func (c *Client) ReportBadStream(ctx context.Context, jobID, reason string) (*ReportResponse, error) {
	c.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"reason": reason,
	}).Info("Reporting bad stream")

	body := map[string]string{
		"jobId":  jobID,
		"reason": reason,
	}

	var resp ReportResponse
	if err := c.doJSONRetry(ctx, http.MethodPost, "/acquire/report", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to report bad stream: %w", err)
	}
	return &resp, nil
}

// QualityFallback requests a lower-quality URL for the current content
func (c *Client) QualityFallback(ctx context.Context, req FallbackRequest) (*FallbackResponse, error) {
	var resp FallbackResponse
	if err := c.doJSON(ctx, http.MethodPost, "/acquire/fallback", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to request quality fallback: %w", err)
	}
	return &resp, nil
}

// Cancel asks the backend to drop an in-flight job. Best effort: callers
// fire it in a goroutine during teardown and do not wait.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/acquire/"+url.PathEscape(jobID), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	return nil
}

// ValidateStreamURL checks that a resolved URL is non-empty and uses an
// expected scheme
func ValidateStreamURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("empty stream URL")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("unexpected stream URL scheme %q", parsed.Scheme)
	}
}
