package discovery

import (
	"context"
	"log/slog"

	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/translate"
)

// Intro is the short card shown before a spot is opened.
type Intro struct {
	Username    string `json:"username"`
	SpotName    string `json:"spotname"`
	Category    string `json:"category"`
	Description string `json:"description"`
	ImageURL    string `json:"image"`
}

// Caption is one stored caption of a spot.
type Caption struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Caption  string `json:"caption"`
}

// Intro returns the intro card of the spot at (username, lat, lon).
func (s *Service) Intro(ctx context.Context, username string, lat, lon float64) (*Intro, error) {
	sp, err := s.find(ctx, username, lat, lon)
	if err != nil {
		return nil, err
	}
	return &Intro{
		Username:    sp.Username,
		SpotName:    sp.SpotName,
		Category:    sp.Category,
		Description: sp.Description,
		ImageURL:    sp.ImageURL,
	}, nil
}

// FullSpot returns the complete spot and counts a view. The view update runs
// detached from ctx and its failure is only logged.
func (s *Service) FullSpot(ctx context.Context, username string, lat, lon float64) (*spot.Spot, error) {
	sp, err := s.find(ctx, username, lat, lon)
	if err != nil {
		return nil, err
	}

	s.views.Add(1)
	go func(id string) {
		defer s.views.Done()
		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ViewTimeout)
		defer cancel()
		if err := s.spots.IncrementViews(vctx, id); err != nil {
			s.logger.WarnContext(vctx, "failed to increment view count",
				slog.String("spot_id", id),
				slog.String("error", err.Error()))
		}
	}(sp.ID)

	return sp, nil
}

// Translation returns the caption stored for language, given as a name such
// as "French" or a code such as "fr".
//
// Errors: ErrLanguageNotSupported, spot.ErrNotFound, ErrTranslationNotFound.
func (s *Service) Translation(ctx context.Context, username string, lat, lon float64, language string) (*Caption, error) {
	code, ok := translate.LookupName(language)
	if !ok {
		return nil, ErrLanguageNotSupported
	}

	sp, err := s.find(ctx, username, lat, lon)
	if err != nil {
		return nil, err
	}

	caption, ok := sp.TranslatedCaptions[code]
	if !ok {
		return nil, ErrTranslationNotFound
	}
	return &Caption{Language: translate.Name(code), Code: code, Caption: caption}, nil
}

// Summary returns the stored summary of the spot.
//
// Errors: spot.ErrNotFound, ErrSummaryUnavailable.
func (s *Service) Summary(ctx context.Context, username string, lat, lon float64) (string, error) {
	sp, err := s.find(ctx, username, lat, lon)
	if err != nil {
		return "", err
	}
	if sp.Summary == nil {
		return "", ErrSummaryUnavailable
	}
	return *sp.Summary, nil
}
