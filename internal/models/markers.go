package models

// MarkerType names a skippable segment within content
type MarkerType string

const (
	MarkerIntro   MarkerType = "intro"
	MarkerRecap   MarkerType = "recap"
	MarkerCredits MarkerType = "credits"
)

// SkipMarker is a named time segment with start/end offsets in seconds
type SkipMarker struct {
	Type  MarkerType `json:"type"`
	Start float64    `json:"start"`
	End   float64    `json:"end"`

	// Credits only: a post-credits scene exists, so skipping seeks within
	// the same content instead of chaining into the next one
	HasPostCredits bool `json:"hasPostCredits,omitempty"`
}

// Span returns the segment length in seconds
func (m SkipMarker) Span() float64 {
	return m.End - m.Start
}

// FindMarker returns the marker of the given type, or nil
func FindMarker(markers []SkipMarker, t MarkerType) *SkipMarker {
	for i := range markers {
		if markers[i].Type == t {
			return &markers[i]
		}
	}
	return nil
}
