package discovery

import (
	"context"
	"fmt"

	"github.com/echospot/echospot/internal/transcribe"
)

// TranslationAudio speaks the caption stored for language.
//
// Errors: ErrSpeechUnavailable, ErrLanguageNotSupported, spot.ErrNotFound,
// ErrTranslationNotFound, ErrSpeechFailed wrapping the provider error.
func (s *Service) TranslationAudio(ctx context.Context, username string, lat, lon float64, language string) (*transcribe.Speech, error) {
	if s.speaker == nil {
		return nil, ErrSpeechUnavailable
	}

	caption, err := s.Translation(ctx, username, lat, lon, language)
	if err != nil {
		return nil, err
	}
	// Placeholder captions from failed translations have nothing to speak.
	if caption.Caption == "" {
		return nil, ErrTranslationNotFound
	}

	sp, err := s.speaker.Speak(ctx, caption.Caption, caption.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s caption: %w", ErrSpeechFailed, caption.Code, err)
	}
	return sp, nil
}
