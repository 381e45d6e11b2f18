package models

import "fmt"

// ContentRef identifies a playable title (one movie or one episode)
type ContentRef struct {
	ID    string
	Title string
	Year  int

	Type ContentType

	// Episode specific fields, nil for movies
	Season  *int
	Episode *int

	// Original audio language code, "" when the catalog does not know it
	OriginalLanguage string
}

// Code returns a compact display code like "S01E04" for episodes
func (c ContentRef) Code() string {
	if c.Type != ContentTypeEpisode || c.Season == nil || c.Episode == nil {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d", *c.Season, *c.Episode)
}

// NextContent describes the unit an autoplay chain will need next:
// the next episode of a series, or a recommended title for movies
type NextContent struct {
	ContentRef

	// Short display summary for the up-next affordance
	Summary string
}
