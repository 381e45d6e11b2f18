package controllers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/services/subtitles"
	"github.com/lmercadier/binger/internal/utils"
)

// TrackController picks the default audio track and keeps the subtitle
// list normalized, deduplicated and matched to the sticky preference
type TrackController struct {
	search SubtitleSearcher
	store  ProgressStore
	logger *logrus.Logger
}

// NewTrackController creates a new track controller
func NewTrackController(search SubtitleSearcher, store ProgressStore, logger *logrus.Logger) *TrackController {
	return &TrackController{
		search: search,
		store:  store,
		logger: logger,
	}
}

// Apply refreshes the session's track lists after a tracks-changed
// notification and applies default selections. Selecting a track makes the
// player emit another tracks-changed; the intent flag consumes exactly one
// such echo so selection does not loop.
func (c *TrackController) Apply(s *Session) {
	var echo bool
	if !s.Update(func(st *SessionState) {
		if st.TrackIntent {
			st.TrackIntent = false
			echo = true
		}
	}) {
		return
	}
	if echo {
		return
	}

	audio := s.Player().AudioTracks()
	text := s.Player().TextTracks()
	options := DedupeSubtitles(NormalizeSubtitles(text))

	snap := s.Snapshot()

	s.Update(func(st *SessionState) {
		st.AudioTracks = audio
		st.Subtitles = options
	})

	if chosen := ChooseAudio(snap.Content.OriginalLanguage, audio); chosen != nil && !chosen.Selected {
		s.Update(func(st *SessionState) { st.TrackIntent = true })
		if err := s.Player().SelectAudio(chosen.ID); err != nil {
			c.logger.WithError(err).Warn("Audio selection failed")
			s.Update(func(st *SessionState) { st.TrackIntent = false })
		} else {
			c.logger.WithFields(logrus.Fields{
				"session_id": s.ID,
				"language":   chosen.Language,
				"label":      chosen.Label,
			}).Info("Selected default audio track")
		}
	}

	c.applySticky(s, options)

	if len(options) == 0 && !snap.ExternalFetched {
		go c.fetchExternal(s)
	}
}

// ChooseAudio scores audio candidates against the title's original
// language. Ordered rules, first match wins:
//  1. exact normalized language match
//  2. any English variant when the original language is English
//  3. a track labelled "original" when the original language is English
//  4. an undefined-language track when the original language is English
//  5. two-letter prefix match on the raw code
//
// Falls back to the first candidate when nothing matches.
func ChooseAudio(originalLang string, candidates []models.TrackCandidate) *models.TrackCandidate {
	if len(candidates) == 0 {
		return nil
	}

	target := utils.NormalizeLangCode(originalLang)
	if target == "" {
		target = "en"
	}
	english := target == "en"

	for i := range candidates {
		if utils.NormalizeLangCode(candidates[i].Language) == target {
			return &candidates[i]
		}
	}
	if english {
		for i := range candidates {
			if utils.IsEnglish(candidates[i].Language) || utils.IsEnglish(candidates[i].Label) {
				return &candidates[i]
			}
		}
		for i := range candidates {
			if strings.Contains(strings.ToLower(candidates[i].Label), "original") {
				return &candidates[i]
			}
		}
		for i := range candidates {
			if utils.NormalizeLangCode(candidates[i].Language) == "" {
				return &candidates[i]
			}
		}
	}
	for i := range candidates {
		raw := strings.ToLower(candidates[i].Language)
		if len(raw) >= 2 && strings.HasPrefix(raw, target) {
			return &candidates[i]
		}
	}
	return &candidates[0]
}

// NormalizeSubtitles converts raw text tracks into canonical subtitle
// options, dropping tracks whose language cannot be resolved
func NormalizeSubtitles(raw []models.TrackCandidate) []models.SubtitleOption {
	options := make([]models.SubtitleOption, 0, len(raw))
	for _, t := range raw {
		lang := utils.NormalizeLangCode(t.Language)
		if lang == "" {
			continue
		}

		label := strings.ToLower(t.Label)
		opt := models.SubtitleOption{
			Track:       t.ID,
			Language:    lang,
			Forced:      strings.Contains(label, "forced"),
			Commentary:  strings.Contains(label, "commentary"),
			Dolby:       strings.Contains(label, "dolby"),
			SDH:         strings.Contains(label, "sdh"),
			Closed:      hasClosedCaptionTag(label),
			Descriptive: strings.Contains(label, "descriptive") || strings.Contains(label, "described"),
		}
		opt.Label = canonicalLabel(opt)
		options = append(options, opt)
	}
	return options
}

// hasClosedCaptionTag reports whether a lowercased label carries a closed
// caption marker. "cc" only counts as its own word, so labels like
// "Accents" are not mis-tagged.
func hasClosedCaptionTag(label string) bool {
	if strings.Contains(label, "closed caption") {
		return true
	}
	for _, word := range strings.FieldsFunc(label, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}) {
		if word == "cc" {
			return true
		}
	}
	return false
}

// canonicalLabel builds the display string, language name plus bracketed
// flags, e.g. "English [SDH]"
func canonicalLabel(o models.SubtitleOption) string {
	name := utils.LanguageName(o.Language)
	if name == "" {
		name = strings.ToUpper(o.Language)
	}

	var flags []string
	if o.Forced {
		flags = append(flags, "Forced")
	}
	if o.SDH {
		flags = append(flags, "SDH")
	}
	if o.Closed {
		flags = append(flags, "CC")
	}
	if o.Commentary {
		flags = append(flags, "Commentary")
	}
	if o.Descriptive {
		flags = append(flags, "Descriptive")
	}
	if o.Dolby {
		flags = append(flags, "Dolby")
	}
	if len(flags) == 0 {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(flags, ", "))
}

// variantRank orders collapsible variants of the same language: plain
// beats SDH beats closed captions beats descriptive
func variantRank(o models.SubtitleOption) int {
	switch {
	case o.SDH:
		return 1
	case o.Closed:
		return 2
	case o.Descriptive:
		return 3
	default:
		return 0
	}
}

// DedupeSubtitles keeps one entry per language among collapsible variants
// while preserving every forced, commentary and dolby track as its own
// entry. Idempotent.
func DedupeSubtitles(options []models.SubtitleOption) []models.SubtitleOption {
	best := make(map[string]models.SubtitleOption)
	distinct := make(map[string]models.SubtitleOption)
	var order []string

	for _, o := range options {
		if o.Forced || o.Commentary || o.Dolby {
			key := o.Language + "|" + o.Label
			if _, seen := distinct[key]; !seen {
				distinct[key] = o
				order = append(order, "d:"+key)
			}
			continue
		}
		prev, seen := best[o.Language]
		if !seen {
			best[o.Language] = o
			order = append(order, "b:"+o.Language)
			continue
		}
		if variantRank(o) < variantRank(prev) {
			best[o.Language] = o
		}
	}

	result := make([]models.SubtitleOption, 0, len(order))
	for _, key := range order {
		if strings.HasPrefix(key, "d:") {
			result = append(result, distinct[key[2:]])
		} else {
			result = append(result, best[key[2:]])
		}
	}
	return result
}

// applySticky auto-selects a subtitle track according to the persisted
// preference. An explicitly disabled preference leaves subtitles off; a
// missing preference targets English.
func (c *TrackController) applySticky(s *Session, options []models.SubtitleOption) {
	if len(options) == 0 {
		return
	}

	target := "en"
	pref, err := c.store.GetSubtitlePreference()
	switch {
	case err == bolthold.ErrNotFound:
		// No saved preference, keep the default target
	case err != nil:
		c.logger.WithError(err).Warn("Could not read subtitle preference")
		return
	case !pref.Enabled:
		return
	default:
		if lang := utils.NormalizeLangCode(pref.Language); lang != "" {
			target = lang
		}
	}

	match := matchSubtitle(options, target)
	if match == nil {
		return
	}

	s.Update(func(st *SessionState) { st.TrackIntent = true })
	id := match.Track
	if err := s.Player().SelectText(&id); err != nil {
		c.logger.WithError(err).Warn("Subtitle selection failed")
		s.Update(func(st *SessionState) { st.TrackIntent = false })
		return
	}
	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"language":   match.Language,
		"label":      match.Label,
	}).Info("Applied sticky subtitle preference")
}

// matchSubtitle finds the best option for a target language: plain variant
// first by resolved code, then any variant by code, then a reverse match
// on the canonical label
func matchSubtitle(options []models.SubtitleOption, target string) *models.SubtitleOption {
	for i := range options {
		o := &options[i]
		if o.Language == target && !o.Forced && !o.Commentary {
			return o
		}
	}
	for i := range options {
		if options[i].Language == target {
			return &options[i]
		}
	}
	name := utils.LanguageName(target)
	for i := range options {
		if utils.SimilarLabel(options[i].Label, name) {
			return &options[i]
		}
	}
	return nil
}

// SetSubtitle applies a user's explicit subtitle choice and persists it as
// the sticky preference. A nil language disables subtitles.
func (c *TrackController) SetSubtitle(s *Session, language *string) error {
	pref := &models.SubtitlePreference{
		ID:        models.SubtitlePreferenceID,
		UpdatedAt: time.Now(),
	}

	if language == nil {
		s.Update(func(st *SessionState) { st.TrackIntent = true })
		if err := s.Player().SelectText(nil); err != nil {
			s.Update(func(st *SessionState) { st.TrackIntent = false })
			return fmt.Errorf("failed to disable subtitles: %w", err)
		}
		pref.Enabled = false
		if err := c.store.SaveSubtitlePreference(pref); err != nil {
			c.logger.WithError(err).Warn("Could not persist subtitle preference")
		}
		return nil
	}

	lang := utils.NormalizeLangCode(*language)
	if lang == "" {
		return fmt.Errorf("unrecognized subtitle language %q", *language)
	}

	snap := s.Snapshot()
	match := matchSubtitle(snap.Subtitles, lang)
	if match == nil {
		return fmt.Errorf("no subtitle track for language %q", lang)
	}

	s.Update(func(st *SessionState) { st.TrackIntent = true })
	id := match.Track
	if err := s.Player().SelectText(&id); err != nil {
		s.Update(func(st *SessionState) { st.TrackIntent = false })
		return fmt.Errorf("failed to select subtitle track: %w", err)
	}

	pref.Enabled = true
	pref.Language = lang
	if err := c.store.SaveSubtitlePreference(pref); err != nil {
		c.logger.WithError(err).Warn("Could not persist subtitle preference")
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"language":   lang,
	}).Info("Subtitle preference updated")
	return nil
}

// fetchExternal queries the subtitle-search collaborator once per session
// when the stream embeds no usable subtitles
func (c *TrackController) fetchExternal(s *Session) {
	snap := s.Snapshot()
	if snap.ExternalFetched {
		return
	}
	s.Update(func(st *SessionState) { st.ExternalFetched = true })

	ctx, cancel := context.WithTimeout(s.Context(), 20*time.Second)
	defer cancel()

	descriptors, err := c.search.Search(ctx, subtitles.SearchRequest{
		ContentID: snap.Content.ID,
		Title:     snap.Content.Title,
		Year:      snap.Content.Year,
		Type:      snap.Content.Type,
		Season:    snap.Content.Season,
		Episode:   snap.Content.Episode,
	})
	if err != nil {
		c.logger.WithError(err).Debug("External subtitle search failed")
		return
	}
	if len(descriptors) == 0 {
		return
	}

	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].LanguageCode < descriptors[j].LanguageCode
	})

	s.Update(func(st *SessionState) {
		st.ExternalSubtitles = append(st.ExternalSubtitles, descriptors...)
	})

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"count":      len(descriptors),
	}).Info("Fetched external subtitles")
}
