// Package spot provides the spot model and its repositories.
//
// A spot is identified by (username, latitude, longitude). The storage ID is a
// surrogate used internally for view counting and never exposed as a lookup key.
package spot

import (
	"errors"
	"maps"
	"time"
)

// DefaultLanguage is the original language recorded when none is detected.
const DefaultLanguage = "en"

var (
	// ErrNotFound is returned when no spot matches a lookup.
	ErrNotFound = errors.New("spot not found")
)

// Spot is a geotagged place with an audio narration, a photo and captions.
type Spot struct {
	ID                 string            `json:"id"`
	Username           string            `json:"username"`
	SpotName           string            `json:"spotname"`
	Category           string            `json:"category"`
	Description        string            `json:"description"`
	Latitude           float64           `json:"latitude"`
	Longitude          float64           `json:"longitude"`
	Geohash            string            `json:"geohash"`
	OriginalLanguage   string            `json:"original_language"`
	ImageURL           string            `json:"image"`
	AudioURL           string            `json:"audio_url"`
	Transcription      string            `json:"transcription"`
	TranslatedCaptions map[string]string `json:"translated_captions"`
	Summary            *string           `json:"summary"`
	ViewCount          int64             `json:"viewcount"`
	LikesCount         int64             `json:"likes_count"`
	CreatedAt          time.Time         `json:"created_at"`
}

// Projection is the lightweight row returned by nearby and profile listings.
type Projection struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	SpotName  string  `json:"spotname"`
	Category  string  `json:"category"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Geohash   string  `json:"geohash"`
}

// Clone returns a deep copy of the spot.
func (s *Spot) Clone() *Spot {
	if s == nil {
		return nil
	}
	c := *s
	c.TranslatedCaptions = maps.Clone(s.TranslatedCaptions)
	if s.Summary != nil {
		summary := *s.Summary
		c.Summary = &summary
	}
	return &c
}

// Projection returns the spot's lightweight listing row.
func (s *Spot) Projection() Projection {
	return Projection{
		ID:        s.ID,
		Username:  s.Username,
		SpotName:  s.SpotName,
		Category:  s.Category,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Geohash:   s.Geohash,
	}
}
