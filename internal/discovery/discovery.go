// Package discovery answers read queries over stored spots: radius search
// around a point and point lookups that re-identify a spot by its
// (username, latitude, longitude) triple.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/echospot/echospot/internal/badge"
	"github.com/echospot/echospot/internal/geo"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/tracing"
	"github.com/echospot/echospot/internal/transcribe"
	"github.com/echospot/echospot/internal/user"
)

const (
	// DefaultRadiusMeters is used by Nearby when no radius is given.
	DefaultRadiusMeters = 3000.0
	// MaxRadiusMeters caps the Nearby radius.
	MaxRadiusMeters = 50_000.0

	defaultViewTimeout = 5 * time.Second
)

var (
	// ErrLanguageNotSupported is returned for a language name outside the caption table.
	ErrLanguageNotSupported = errors.New("language not supported")
	// ErrTranslationNotFound is returned when the spot has no caption for the language.
	ErrTranslationNotFound = errors.New("translation not found")
	// ErrSummaryUnavailable is returned when the spot was stored without a summary.
	ErrSummaryUnavailable = errors.New("summary unavailable")
	// ErrSpeechUnavailable is returned when no speech provider is configured.
	ErrSpeechUnavailable = errors.New("speech unavailable")
	// ErrSpeechFailed wraps a speech provider error.
	ErrSpeechFailed = errors.New("speech failed")
)

// Config holds discovery settings.
type Config struct {
	// DefaultRadiusMeters applies when Nearby is called with radius <= 0.
	// Default: 3000.
	DefaultRadiusMeters float64
	// MatchTolerance is the per-axis window in degrees for point lookups.
	// Default: geo.LookupTolerance.
	MatchTolerance float64
	// ViewTimeout bounds the detached view-count update. Default: 5s.
	ViewTimeout time.Duration
}

// Service answers discovery queries.
type Service struct {
	spots  spot.Repository
	users  user.Repository
	badges  *badge.Counter
	speaker transcribe.Speaker
	cfg     Config
	logger  *slog.Logger

	// views tracks detached view-count updates so shutdown can wait for them.
	views sync.WaitGroup
}

// NewService creates a discovery service. users and badges may be nil, in
// which case profiles carry no user row and a zero badge score.
func NewService(spots spot.Repository, users user.Repository, badges *badge.Counter, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultRadiusMeters <= 0 {
		cfg.DefaultRadiusMeters = DefaultRadiusMeters
	}
	if cfg.DefaultRadiusMeters > MaxRadiusMeters {
		cfg.DefaultRadiusMeters = MaxRadiusMeters
	}
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = geo.LookupTolerance
	}
	if cfg.ViewTimeout <= 0 {
		cfg.ViewTimeout = defaultViewTimeout
	}

	return &Service{
		spots:  spots,
		users:  users,
		badges: badges,
		cfg:    cfg,
		logger: logger,
	}
}

// WithSpeaker enables TranslationAudio.
func (s *Service) WithSpeaker(speaker transcribe.Speaker) *Service {
	s.speaker = speaker
	return s
}

// Wait blocks until every pending view-count update has finished.
func (s *Service) Wait() {
	s.views.Wait()
}

// find returns the first spot of username within the match tolerance of
// (lat, lon). When several spots fall in the window the earliest inserted wins.
func (s *Service) find(ctx context.Context, username string, lat, lon float64) (*spot.Spot, error) {
	matches, err := s.spots.FindNear(ctx, username, lat, lon, s.cfg.MatchTolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to look up spot: %w", err)
	}
	if len(matches) == 0 {
		return nil, spot.ErrNotFound
	}
	if len(matches) > 1 {
		tracing.AddEvent(ctx, "discovery.ambiguous_match")
		s.logger.DebugContext(ctx, "ambiguous spot lookup, using first match",
			slog.String("username", username),
			slog.Int("matches", len(matches)))
	}
	return matches[0], nil
}
