package models

// ContentType represents the type of content (movie or episode)
type ContentType string

const (
	ContentTypeMovie   ContentType = "movie"
	ContentTypeEpisode ContentType = "episode"
)

// Phase represents the loading phase of a playback session
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseSearching   Phase = "searching"
	PhaseDownloading Phase = "downloading"
	PhasePlaying     Phase = "playing"
	PhaseEnded       Phase = "ended"
	PhaseFailed      Phase = "failed"
)

// JobStatus represents the status of an acquisition job
type JobStatus string

const (
	JobStatusSearching   JobStatus = "searching"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// PrefetchState represents the autoplay prefetch state machine
type PrefetchState string

const (
	PrefetchIdle      PrefetchState = "idle"
	PrefetchTriggered PrefetchState = "triggered"
	PrefetchReady     PrefetchState = "ready"
	PrefetchFailed    PrefetchState = "failed"
)

// FaultClass groups player faults by the recovery they get
type FaultClass string

const (
	FaultClassNetwork   FaultClass = "network"   // not retried, user must fix connectivity
	FaultClassRetryable FaultClass = "retryable" // retried once through report-bad-stream
	FaultClassTerminal  FaultClass = "terminal"  // surfaced with a generic retry affordance
)
