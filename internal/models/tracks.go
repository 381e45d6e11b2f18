package models

// TrackKind distinguishes audio from text tracks
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackText  TrackKind = "text"
)

// TrackID identifies a track inside the player as a structured pair
// instead of a composite "group_index" string
type TrackID struct {
	Group string
	Index int
}

// TrackCandidate is one audio or text track as exposed by the player
type TrackCandidate struct {
	ID       TrackID
	Kind     TrackKind
	Label    string // raw label as reported by the player
	Language string // raw language code, may be empty or "und"
	Selected bool
}

// SubtitleOption is a normalized, deduplicated subtitle entry ready for
// display and selection
type SubtitleOption struct {
	Track    TrackID
	Language string // normalized two-letter base code
	Label    string // canonical display label, e.g. "English [SDH]"

	Forced      bool
	Commentary  bool
	Dolby       bool
	SDH         bool
	Closed      bool
	Descriptive bool
}

// SubtitleDescriptor is an external subtitle as returned by the
// subtitle-search collaborator
type SubtitleDescriptor struct {
	ID           string `json:"id,omitempty"`
	Language     string `json:"language"`
	LanguageCode string `json:"languageCode"`
	URL          string `json:"url,omitempty"`
	StreamIndex  *int   `json:"streamIndex,omitempty"`
	Label        string `json:"label,omitempty"`
	Source       string `json:"source"`
}
