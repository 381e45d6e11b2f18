package controllers

import (
	"context"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
	"github.com/lmercadier/binger/internal/services/resolver"
	"github.com/lmercadier/binger/internal/services/subtitles"
)

// Resolver is the source-resolution backend as consumed by the controllers
type Resolver interface {
	Start(ctx context.Context, req resolver.StartRequest) (*resolver.StartResponse, error)
	Poll(ctx context.Context, jobID string) (*resolver.PollResponse, error)
	ReportBadStream(ctx context.Context, jobID, reason string) (*resolver.ReportResponse, error)
	QualityFallback(ctx context.Context, req resolver.FallbackRequest) (*resolver.FallbackResponse, error)
	PrefetchNext(ctx context.Context, req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error)
	Promote(ctx context.Context, jobID string) (*resolver.PromoteResponse, error)
	Cancel(ctx context.Context, jobID string) error
}

// SubtitleSearcher finds external subtitles for a content unit
type SubtitleSearcher interface {
	Search(ctx context.Context, req subtitles.SearchRequest) ([]models.SubtitleDescriptor, error)
}

// Telemetry is the session-tracking collaborator; every call is best effort
type Telemetry interface {
	Heartbeat(ctx context.Context) error
	SyncProgress(ctx context.Context, record *models.ProgressRecord) error
	LogFault(ctx context.Context, contentID, code, message string) error
	RunBandwidthTest(ctx context.Context) error
}

// ProgressStore is the local persistence for watch progress and the sticky
// subtitle preference
type ProgressStore interface {
	UpsertProgress(record *models.ProgressRecord) error
	GetProgress(contentID string) (*models.ProgressRecord, error)
	GetSubtitlePreference() (*models.SubtitlePreference, error)
	SaveSubtitlePreference(pref *models.SubtitlePreference) error
}

// PlayerFactory creates the playback surface for a new session
type PlayerFactory func() player.Player
