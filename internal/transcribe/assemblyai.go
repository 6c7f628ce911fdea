package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/echospot/echospot/internal/tracing"
	"github.com/echospot/echospot/internal/validate"
)

const (
	// ProviderAssemblyAI names the chaptered transcription provider.
	ProviderAssemblyAI = "assemblyai"

	// DefaultAssemblyAIURL is the public API base.
	DefaultAssemblyAIURL = "https://api.assemblyai.com"

	DefaultPollInterval  = 3 * time.Second
	DefaultBackoffFactor = 1.0
	DefaultMaxWait       = 5 * time.Minute

	statusCompleted = "completed"
	statusError     = "error"

	maxAssemblyAIResponse = 16 << 20
	requestTimeout        = 30 * time.Second
)

// AssemblyAIConfig configures an AssemblyAIClient.
type AssemblyAIConfig struct {
	BaseURL string
	APIKey  string

	// PollInterval is the wait before each status check. Default 3s.
	PollInterval time.Duration
	// BackoffFactor multiplies the interval after every check. 1.0 keeps it fixed.
	BackoffFactor float64
	// MaxPollInterval caps the grown interval. Zero means no cap.
	MaxPollInterval time.Duration
	// MaxWait bounds the whole poll loop. Default 5 minutes.
	MaxWait time.Duration
	// MaxAttempts bounds the number of status checks. Zero means unlimited within MaxWait.
	MaxAttempts int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AssemblyAIClient runs chaptered transcription jobs: upload the audio,
// create a transcript with auto_chapters, then poll until it completes.
type AssemblyAIClient struct {
	baseURL    string
	apiKey     string
	poll       AssemblyAIConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ChapterTranscriber = (*AssemblyAIClient)(nil)

type uploadResponse struct {
	UploadURL *string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	AutoChapters bool   `json:"auto_chapters"`
}

type transcriptResponse struct {
	ID       *string          `json:"id"`
	Status   *string          `json:"status"`
	Text     *string          `json:"text"`
	Error    *string          `json:"error"`
	Chapters []chapterPayload `json:"chapters"`
}

type chapterPayload struct {
	Headline *string `json:"headline"`
	Summary  *string `json:"summary"`
	Gist     *string `json:"gist"`
	Start    *int64  `json:"start"`
	End      *int64  `json:"end"`
}

// NewAssemblyAIClient validates cfg, applies defaults and creates a client.
func NewAssemblyAIClient(cfg AssemblyAIConfig) (*AssemblyAIClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAssemblyAIURL
	}
	base, err := validate.ServiceURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid assemblyai base URL: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assemblyai API key is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AssemblyAIClient{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		poll:       cfg,
		httpClient: client,
		logger:     logger,
	}, nil
}

// TranscribeChapters uploads audio, starts a chaptered transcript and waits for it.
//
// The wait is bounded by MaxWait and MaxAttempts; exceeding either returns an
// error wrapping ErrProviderTimeout. Cancelling ctx stops polling at once with
// the context's error. A job that ends in status "error" yields *FailedError.
func (c *AssemblyAIClient) TranscribeChapters(ctx context.Context, audio Audio) (res *ChapterResult, err error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	ctx, endSpan := tracing.StartProviderSpan(ctx, ProviderAssemblyAI, "transcribe_chapters")
	defer func() { endSpan(err) }()

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	id, err := c.createTranscript(ctx, uploadURL)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "transcript job created", slog.String("transcript_id", id))

	return c.waitForTranscript(ctx, id)
}

func (c *AssemblyAIClient) upload(ctx context.Context, audio Audio) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v2/upload", bytes.NewReader(audio.Data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.UploadURL == nil || *out.UploadURL == "" {
		return "", &FailedError{Provider: ProviderAssemblyAI, Details: "upload response has no upload_url"}
	}
	return *out.UploadURL, nil
}

func (c *AssemblyAIClient) createTranscript(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(transcriptRequest{AudioURL: audioURL, AutoChapters: true})
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out transcriptResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == nil || *out.ID == "" {
		return "", &FailedError{Provider: ProviderAssemblyAI, Details: "transcript response has no id"}
	}
	return *out.ID, nil
}

func (c *AssemblyAIClient) waitForTranscript(ctx context.Context, id string) (*ChapterResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.poll.MaxWait)
	defer cancel()

	interval := c.poll.PollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-waitCtx.Done():
			return nil, c.waitError(ctx, id, attempt-1)
		case <-timer.C:
		}

		status, err := c.getTranscript(waitCtx, id)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, c.waitError(ctx, id, attempt)
			}
			return nil, err
		}

		switch value(status.Status) {
		case statusCompleted:
			return chapterResult(status), nil
		case statusError:
			details := value(status.Error)
			if details == "" {
				details = "transcript job failed"
			}
			return nil, &FailedError{Provider: ProviderAssemblyAI, Details: details}
		}

		if c.poll.MaxAttempts > 0 && attempt >= c.poll.MaxAttempts {
			return nil, fmt.Errorf("%w: transcript %s still %q after %d checks", ErrProviderTimeout, id, value(status.Status), attempt)
		}

		interval = c.nextInterval(interval)
		timer.Reset(interval)
	}
}

// waitError distinguishes caller cancellation from the MaxWait budget running out.
func (c *AssemblyAIClient) waitError(ctx context.Context, id string, attempts int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: transcript %s not completed within %s (%d checks)", ErrProviderTimeout, id, c.poll.MaxWait, attempts)
}

func (c *AssemblyAIClient) nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.poll.BackoffFactor)
	if c.poll.MaxPollInterval > 0 && next > c.poll.MaxPollInterval {
		next = c.poll.MaxPollInterval
	}
	return next
}

func (c *AssemblyAIClient) getTranscript(ctx context.Context, id string) (*transcriptResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out transcriptResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AssemblyAIClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create assemblyai request: %w", err)
	}
	req.Header.Set("authorization", c.apiKey)
	return req, nil
}

func (c *AssemblyAIClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssemblyAIResponse))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error *string `json:"error"`
		}
		details := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &body) == nil && body.Error != nil && *body.Error != "" {
			details = *body.Error
		}
		return &FailedError{Provider: ProviderAssemblyAI, StatusCode: resp.StatusCode, Details: details}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &FailedError{Provider: ProviderAssemblyAI, StatusCode: resp.StatusCode, Details: "malformed response: " + err.Error()}
	}
	return nil
}

func chapterResult(t *transcriptResponse) *ChapterResult {
	res := &ChapterResult{Text: strings.TrimSpace(value(t.Text))}
	for _, ch := range t.Chapters {
		chapter := Chapter{
			Headline: value(ch.Headline),
			Summary:  value(ch.Summary),
			Gist:     value(ch.Gist),
		}
		if ch.Start != nil {
			chapter.StartMS = *ch.Start
		}
		if ch.End != nil {
			chapter.EndMS = *ch.End
		}
		res.Chapters = append(res.Chapters, chapter)
	}
	if len(res.Chapters) > 0 {
		res.Title = res.Chapters[0].Headline
		res.Summary = res.Chapters[0].Summary
	}
	return res
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
