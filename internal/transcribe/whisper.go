package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/echospot/echospot/internal/tracing"
	"github.com/echospot/echospot/internal/validate"
)

const (
	// ProviderWhisper names the whisper server in errors, spans and metrics.
	ProviderWhisper = "whisper"

	defaultWhisperTimeout = 2 * time.Minute
	maxWhisperResponse    = 4 << 20
)

// WhisperConfig configures a WhisperClient.
type WhisperConfig struct {
	// BaseURL of the whisper server, e.g. "http://whisper:5000".
	BaseURL string
	// Timeout bounds one request when HTTPClient is nil. Default 2 minutes.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// WhisperClient transcribes audio synchronously against a whisper HTTP server
// exposing POST /transcribe with a multipart "audio" field. The same server
// speaks text through POST /tts.
type WhisperClient struct {
	endpoint    string
	ttsEndpoint string
	httpClient  *http.Client
}

var (
	_ Transcriber = (*WhisperClient)(nil)
	_ Speaker     = (*WhisperClient)(nil)
)

// whisperResponse is the server's JSON body. Every field is optional.
type whisperResponse struct {
	Text     *string `json:"text"`
	Language *string `json:"language"`
	Error    *string `json:"error"`
}

// NewWhisperClient validates cfg and creates a client.
func NewWhisperClient(cfg WhisperConfig) (*WhisperClient, error) {
	base, err := validate.ServiceURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid whisper base URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultWhisperTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	base = strings.TrimRight(base, "/")
	return &WhisperClient{
		endpoint:    base + "/transcribe",
		ttsEndpoint: base + "/tts",
		httpClient:  client,
	}, nil
}

// Transcribe uploads audio and returns the text and detected language.
//
// Transport errors wrap ErrProviderUnavailable. A non-200 status or an "error"
// field in the body yields *FailedError.
func (c *WhisperClient) Transcribe(ctx context.Context, audio Audio) (res *Result, err error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	ctx, endSpan := tracing.StartProviderSpan(ctx, ProviderWhisper, "transcribe")
	defer func() { endSpan(err) }()

	body, contentType, err := multipartAudio(audio)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWhisperResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrProviderUnavailable, err)
	}

	var parsed whisperResponse
	decodeErr := json.Unmarshal(data, &parsed)

	if resp.StatusCode != http.StatusOK {
		details := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && *parsed.Error != "" {
			details = *parsed.Error
		}
		return nil, &FailedError{Provider: ProviderWhisper, StatusCode: resp.StatusCode, Details: details}
	}
	if decodeErr != nil {
		return nil, &FailedError{Provider: ProviderWhisper, StatusCode: resp.StatusCode, Details: "malformed response: " + decodeErr.Error()}
	}
	if parsed.Error != nil && *parsed.Error != "" {
		return nil, &FailedError{Provider: ProviderWhisper, StatusCode: resp.StatusCode, Details: *parsed.Error}
	}
	if parsed.Text == nil {
		return nil, &FailedError{Provider: ProviderWhisper, StatusCode: resp.StatusCode, Details: "response has no text"}
	}

	res = &Result{Text: strings.TrimSpace(*parsed.Text)}
	if parsed.Language != nil {
		res.Language = strings.TrimSpace(*parsed.Language)
	}
	return res, nil
}

func multipartAudio(audio Audio) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename(audio)))
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
