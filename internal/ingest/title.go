package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echospot/echospot/internal/summary"
	"github.com/echospot/echospot/internal/tracing"
	"github.com/echospot/echospot/internal/transcribe"
	"github.com/echospot/echospot/internal/validate"
)

// ErrTitleUnavailable is returned by SuggestTitle when no chaptered
// transcriber is configured.
var ErrTitleUnavailable = errors.New("title suggestion is not configured")

// TitleRequest asks for a title and summary for a recording before submission.
type TitleRequest struct {
	Username string // optional; binds the summary token to this user
	Audio    *File
}

// TitleSuggestion is returned to the client. SummaryToken is presented with
// the later submission to attach Description as the spot summary.
type TitleSuggestion struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	SummaryToken string    `json:"summary_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SuggestTitle runs chaptered transcription on the audio and keeps the
// summary under a fresh token until the spot is submitted.
//
// Errors: *ValidationError, ErrTitleUnavailable, errors wrapping
// transcribe.ErrProviderTimeout or transcribe.ErrProviderUnavailable,
// *transcribe.FailedError, and summary store failures.
func (p *Pipeline) SuggestTitle(ctx context.Context, req TitleRequest) (ts *TitleSuggestion, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ingest.SuggestTitle")
	defer func() { endSpan(err) }()
	defer p.metrics.observeStage(StageTitle, time.Now())

	if req.Audio == nil || len(req.Audio.Data) == 0 {
		return nil, &ValidationError{Field: "audio", Message: "audio file is required"}
	}
	contentType, err := validate.AudioFile(req.Audio.ContentType, int64(len(req.Audio.Data)), p.cfg.MaxAudioBytes)
	if err != nil {
		return nil, &ValidationError{Field: "audio", Message: err.Error()}
	}

	username := ""
	if strings.TrimSpace(req.Username) != "" {
		if username, err = validate.Username(req.Username); err != nil {
			return nil, &ValidationError{Field: "username", Message: err.Error()}
		}
	}

	if p.chapters == nil {
		return nil, ErrTitleUnavailable
	}

	res, err := p.chapters.TranscribeChapters(ctx, transcribe.Audio{
		Data:        req.Audio.Data,
		ContentType: contentType,
		Filename:    req.Audio.Filename,
	})
	if err != nil {
		p.metrics.recordProviderFailure(transcribe.ProviderAssemblyAI, StageTitle)
		p.logger.WarnContext(ctx, "chaptered transcription failed", slog.String("error", err.Error()))
		return nil, err
	}

	now := p.now().UTC()
	token := uuid.NewString()
	entry := summary.Entry{
		Title:     res.Title,
		Summary:   res.Summary,
		Username:  username,
		CreatedAt: now,
	}
	if err := p.summaries.Put(ctx, token, entry, p.cfg.SummaryTTL); err != nil {
		return nil, fmt.Errorf("failed to store pending summary: %w", err)
	}

	return &TitleSuggestion{
		Title:        res.Title,
		Description:  res.Summary,
		SummaryToken: token,
		ExpiresAt:    now.Add(p.cfg.SummaryTTL),
	}, nil
}
