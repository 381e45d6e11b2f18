package models

import "time"

// ProgressRecord tracks watch progress for one content unit
type ProgressRecord struct {
	ContentID string `boltholdKey:"ContentID"`

	Type     ContentType
	Position float64 // seconds
	Duration float64 // seconds

	// Completion threshold differs by type: 95% for episodes, 90% for movies
	Completed bool

	UpdatedAt time.Time
}

// SubtitlePreference is the sticky subtitle choice persisted across sessions
type SubtitlePreference struct {
	ID string `boltholdKey:"ID"` // single record, always "subtitle"

	// Enabled false means the user explicitly turned subtitles off; the
	// absence of a record means no choice was ever made
	Enabled  bool
	Language string // normalized two-letter code

	UpdatedAt time.Time
}

// SubtitlePreferenceID is the fixed key of the single preference record
const SubtitlePreferenceID = "subtitle"
