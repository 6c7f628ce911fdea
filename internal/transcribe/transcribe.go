// Package transcribe converts spoken audio to text through external
// speech-to-text providers, and speaks captions back through the same
// whisper server.
//
// Two shapes are supported: a synchronous Transcriber that returns the text and
// detected language in one call (a whisper HTTP server), and a ChapterTranscriber
// that submits a job and polls until it yields a transcript with chapter
// headlines and summaries (an AssemblyAI-style REST API).
package transcribe

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProviderTimeout is returned when an asynchronous job does not finish
	// within the configured wait or attempt budget.
	ErrProviderTimeout = errors.New("transcription provider timed out")

	// ErrProviderUnavailable wraps transport failures reaching a provider.
	ErrProviderUnavailable = errors.New("transcription provider unavailable")

	// ErrEmptyAudio is returned when no audio bytes are supplied.
	ErrEmptyAudio = errors.New("audio is empty")
)

// FailedError reports a provider that was reached but refused or failed the job.
// It is terminal: retrying the same audio is not expected to succeed.
type FailedError struct {
	Provider   string
	Operation  string // "transcription" when empty
	StatusCode int    // HTTP status, 0 when the failure came from a job status
	Details    string
}

func (e *FailedError) Error() string {
	op := e.Operation
	if op == "" {
		op = "transcription"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (HTTP %d): %s", e.Provider, op, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, op, e.Details)
}

// Audio is an uploaded recording.
type Audio struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Result is a synchronous transcription.
type Result struct {
	Text string
	// Language is the provider's detected language as reported, possibly empty.
	Language string
}

// Chapter is one auto-detected section of a recording.
type Chapter struct {
	Headline string
	Summary  string
	Gist     string
	StartMS  int64
	EndMS    int64
}

// ChapterResult is a completed chaptered transcription.
type ChapterResult struct {
	Text string
	// Title and Summary come from the first chapter and are empty when the
	// provider found none.
	Title    string
	Summary  string
	Chapters []Chapter
}

// Transcriber transcribes audio in a single request.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (*Result, error)
}

// ChapterTranscriber transcribes audio with chapter detection.
type ChapterTranscriber interface {
	TranscribeChapters(ctx context.Context, audio Audio) (*ChapterResult, error)
}

func filename(a Audio) string {
	if a.Filename != "" {
		return a.Filename
	}
	return "audio"
}
