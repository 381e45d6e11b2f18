package controllers

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
	"github.com/lmercadier/binger/internal/services/resolver"
	"github.com/lmercadier/binger/internal/services/subtitles"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func intPtr(v int) *int { return &v }

func testEpisode() models.ContentRef {
	return models.ContentRef{
		ID:               "show-1-s01e02",
		Title:            "Test Show",
		Year:             2024,
		Type:             models.ContentTypeEpisode,
		Season:           intPtr(1),
		Episode:          intPtr(2),
		OriginalLanguage: "en",
	}
}

func testMovie() models.ContentRef {
	return models.ContentRef{
		ID:    "movie-1",
		Title: "Test Movie",
		Year:  2023,
		Type:  models.ContentTypeMovie,
	}
}

// newTestSession builds a session around a bridge player, which tests
// drive directly through its Report methods
func newTestSession(ref models.ContentRef, autoplay bool) (*Session, *player.Bridge) {
	bridge := player.NewBridge()
	return newSession(bridge, ref, autoplay, testLogger()), bridge
}

// fakeResolver answers with canned responses through per-method hooks
type fakeResolver struct {
	mu sync.Mutex

	startFn    func(req resolver.StartRequest) (*resolver.StartResponse, error)
	pollFn     func(jobID string) (*resolver.PollResponse, error)
	reportFn   func(jobID, reason string) (*resolver.ReportResponse, error)
	fallbackFn func(req resolver.FallbackRequest) (*resolver.FallbackResponse, error)
	prefetchFn func(req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error)
	promoteFn  func(jobID string) (*resolver.PromoteResponse, error)

	polls     int
	cancelled []string
}

func (f *fakeResolver) Start(_ context.Context, req resolver.StartRequest) (*resolver.StartResponse, error) {
	return f.startFn(req)
}

func (f *fakeResolver) Poll(_ context.Context, jobID string) (*resolver.PollResponse, error) {
	f.mu.Lock()
	f.polls++
	f.mu.Unlock()
	return f.pollFn(jobID)
}

func (f *fakeResolver) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeResolver) ReportBadStream(_ context.Context, jobID, reason string) (*resolver.ReportResponse, error) {
	return f.reportFn(jobID, reason)
}

func (f *fakeResolver) QualityFallback(_ context.Context, req resolver.FallbackRequest) (*resolver.FallbackResponse, error) {
	return f.fallbackFn(req)
}

func (f *fakeResolver) PrefetchNext(_ context.Context, req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error) {
	return f.prefetchFn(req)
}

func (f *fakeResolver) Promote(_ context.Context, jobID string) (*resolver.PromoteResponse, error) {
	return f.promoteFn(jobID)
}

func (f *fakeResolver) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, jobID)
	f.mu.Unlock()
	return nil
}

// fakeTelemetry records calls; every method succeeds
type fakeTelemetry struct {
	mu         sync.Mutex
	heartbeats int
	synced     []*models.ProgressRecord
	faults     []string
	bandwidth  int
}

func (f *fakeTelemetry) Heartbeat(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeTelemetry) SyncProgress(_ context.Context, record *models.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, record)
	return nil
}

func (f *fakeTelemetry) LogFault(_ context.Context, contentID, code, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, code)
	return nil
}

func (f *fakeTelemetry) RunBandwidthTest(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bandwidth++
	return nil
}

// fakeStore is an in-memory ProgressStore
type fakeStore struct {
	mu       sync.Mutex
	progress map[string]*models.ProgressRecord
	pref     *models.SubtitlePreference
}

func newFakeStore() *fakeStore {
	return &fakeStore{progress: make(map[string]*models.ProgressRecord)}
}

func (f *fakeStore) UpsertProgress(record *models.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *record
	f.progress[record.ContentID] = &copied
	return nil
}

func (f *fakeStore) GetProgress(contentID string) (*models.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.progress[contentID]
	if !ok {
		return nil, bolthold.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (f *fakeStore) GetSubtitlePreference() (*models.SubtitlePreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pref == nil {
		return nil, bolthold.ErrNotFound
	}
	copied := *f.pref
	return &copied, nil
}

func (f *fakeStore) SaveSubtitlePreference(pref *models.SubtitlePreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *pref
	f.pref = &copied
	return nil
}

// fakeSearcher returns canned external subtitle descriptors
type fakeSearcher struct {
	mu          sync.Mutex
	calls       int
	descriptors []models.SubtitleDescriptor
}

func (f *fakeSearcher) Search(_ context.Context, _ subtitles.SearchRequest) ([]models.SubtitleDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.descriptors, nil
}
