package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/echospot/echospot/internal/tracing"
)

const (
	// SpeechContentType is assumed when the server omits a content type.
	SpeechContentType = "audio/mpeg"

	maxSpeechText  = 5000
	maxSpeechAudio = 16 << 20
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLong is returned for text above the speech limit.
	ErrTextTooLong = errors.New("text is too long to speak")
)

// Speech is synthesized audio.
type Speech struct {
	Data        []byte
	ContentType string
}

// Speaker turns text into spoken audio.
type Speaker interface {
	// Speak synthesizes text in language, given as a caption code such as "fr".
	Speak(ctx context.Context, text, language string) (*Speech, error)
}

type speechRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Speak posts {text, lang} to the server's /tts endpoint and returns the audio.
//
// Transport errors wrap ErrProviderUnavailable. A non-200 status or a JSON
// body instead of audio yields *FailedError.
func (c *WhisperClient) Speak(ctx context.Context, text, language string) (sp *Speech, err error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, ErrEmptyText
	case len(text) > maxSpeechText:
		return nil, ErrTextTooLong
	}
	if language == "" {
		language = "en"
	}

	ctx, endSpan := tracing.StartProviderSpan(ctx, ProviderWhisper, "speak")
	defer func() { endSpan(err) }()

	payload, err := json.Marshal(speechRequest{Text: text, Lang: language})
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", SpeechContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechAudio))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read speech: %v", ErrProviderUnavailable, err)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if resp.StatusCode != http.StatusOK || mediaType == "application/json" {
		details := http.StatusText(resp.StatusCode)
		var parsed whisperResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil && *parsed.Error != "" {
			details = *parsed.Error
		} else if resp.StatusCode == http.StatusOK {
			details = "server returned JSON instead of audio"
		}
		return nil, &FailedError{Provider: ProviderWhisper, Operation: "speech", StatusCode: resp.StatusCode, Details: details}
	}
	if len(data) == 0 {
		return nil, &FailedError{Provider: ProviderWhisper, Operation: "speech", StatusCode: resp.StatusCode, Details: "empty audio"}
	}

	if mediaType == "" {
		contentType = SpeechContentType
	}
	return &Speech{Data: data, ContentType: contentType}, nil
}
