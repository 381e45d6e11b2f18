package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/models"
)

// Prefetch modes
const (
	ModeEpisode   = "episode"   // deterministic next episode
	ModeRecommend = "recommend" // recommended next title for movies
)

// PrefetchRequest asks for the content an autoplay chain will need next
type PrefetchRequest struct {
	ContentID      string             `json:"contentId"`
	Title          string             `json:"title"`
	Year           int                `json:"year,omitempty"`
	Type           models.ContentType `json:"type"`
	CurrentSeason  int                `json:"currentSeason,omitempty"`
	CurrentEpisode int                `json:"currentEpisode,omitempty"`
	Mode           string             `json:"mode"`
}

// PrefetchResponse names the next unit and the job resolving it
type PrefetchResponse struct {
	HasNext bool                `json:"hasNext"`
	JobID   string              `json:"jobId,omitempty"`
	Next    *models.NextContent `json:"nextContentSummary,omitempty"`
}

// PromoteResponse is the bounded readiness check at promotion time
type PromoteResponse struct {
	Success bool                `json:"success"`
	Status  string              `json:"status"`
	URL     string              `json:"url,omitempty"`
	HasNext bool                `json:"hasNext,omitempty"`
	Next    *models.NextContent `json:"nextContentSummary,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// PrefetchNext starts an independent acquisition job for the next content
// unit in the autoplay chain
func (c *Client) PrefetchNext(ctx context.Context, req PrefetchRequest) (*PrefetchResponse, error) {
	c.logger.WithFields(logrus.Fields{
		"content_id": req.ContentID,
		"mode":       req.Mode,
	}).Info("Prefetching next content")

	var resp PrefetchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/prefetch", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to prefetch next content: %w", err)
	}
	return &resp, nil
}

// Promote queries a prefetch job for promotion into the live session.
// Callers bound it with a short context deadline.
func (c *Client) Promote(ctx context.Context, jobID string) (*PromoteResponse, error) {
	var resp PromoteResponse
	if err := c.doJSON(ctx, http.MethodPost, "/prefetch/"+url.PathEscape(jobID)+"/promote", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to promote prefetch job %s: %w", jobID, err)
	}
	return &resp, nil
}
