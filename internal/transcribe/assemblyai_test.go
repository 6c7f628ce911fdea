package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAssemblyAI serves upload and transcript creation, and answers status
// checks with statuses in order, repeating the last one.
type fakeAssemblyAI struct {
	t        *testing.T
	statuses []string
	final    string
	checks   atomic.Int32
}

func (f *fakeAssemblyAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("authorization") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Authentication error, API token missing/invalid"}`))
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/upload":
		data, _ := io.ReadAll(r.Body)
		if string(data) != "audio-bytes" {
			f.t.Errorf("upload body = %q", data)
		}
		_, _ = w.Write([]byte(`{"upload_url":"https://cdn.example/upload/1"}`))

	case r.Method == http.MethodPost && r.URL.Path == "/v2/transcript":
		var req transcriptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode transcript request: %v", err)
		}
		if req.AudioURL != "https://cdn.example/upload/1" || !req.AutoChapters {
			f.t.Errorf("unexpected transcript request %+v", req)
		}
		_, _ = w.Write([]byte(`{"id":"tr_1","status":"queued"}`))

	case r.Method == http.MethodGet && r.URL.Path == "/v2/transcript/tr_1":
		n := int(f.checks.Add(1))
		status := f.statuses[min(n, len(f.statuses))-1]
		switch status {
		case statusCompleted:
			_, _ = w.Write([]byte(f.final))
		case statusError:
			_, _ = w.Write([]byte(`{"id":"tr_1","status":"error","error":"audio too short"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"tr_1","status":"` + status + `"}`))
		}

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

const completedTranscript = `{
	"id": "tr_1",
	"status": "completed",
	"text": "Welcome to the old harbour. ",
	"chapters": [
		{"headline": "The old harbour", "summary": "A walk along the harbour wall.", "gist": "harbour", "start": 0, "end": 4200},
		{"headline": "Fish market", "summary": "Morning trade.", "start": 4200, "end": 9000}
	]
}`

func newAssemblyAI(t *testing.T, fake *fakeAssemblyAI, cfg AssemblyAIConfig) *AssemblyAIClient {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "secret"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	client, err := NewAssemblyAIClient(cfg)
	if err != nil {
		t.Fatalf("NewAssemblyAIClient() error = %v", err)
	}
	return client
}

func TestAssemblyAIClient_Completed(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"queued", "processing", statusCompleted}, final: completedTranscript}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{MaxWait: 5 * time.Second})

	res, err := client.TranscribeChapters(context.Background(), Audio{Data: []byte("audio-bytes")})
	if err != nil {
		t.Fatalf("TranscribeChapters() error = %v", err)
	}

	if res.Text != "Welcome to the old harbour." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Title != "The old harbour" || res.Summary != "A walk along the harbour wall." {
		t.Errorf("Title/Summary = %q / %q", res.Title, res.Summary)
	}
	if len(res.Chapters) != 2 || res.Chapters[1].StartMS != 4200 || res.Chapters[1].Gist != "" {
		t.Errorf("Chapters = %+v", res.Chapters)
	}
	if got := fake.checks.Load(); got != 3 {
		t.Errorf("status checks = %d, want 3", got)
	}
}

func TestAssemblyAIClient_NoChapters(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{statusCompleted}, final: `{"id":"tr_1","status":"completed","text":"short"}`}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{})

	res, err := client.TranscribeChapters(context.Background(), Audio{Data: []byte("audio-bytes")})
	if err != nil {
		t.Fatalf("TranscribeChapters() error = %v", err)
	}
	if res.Title != "" || res.Summary != "" || res.Text != "short" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAssemblyAIClient_JobError(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"processing", statusError}}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{})

	_, err := client.TranscribeChapters(context.Background(), Audio{Data: []byte("audio-bytes")})
	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *FailedError, got %v", err)
	}
	if failed.Details != "audio too short" {
		t.Errorf("Details = %q", failed.Details)
	}
	if got := fake.checks.Load(); got != 2 {
		t.Errorf("error status must be terminal, got %d checks", got)
	}
}

func TestAssemblyAIClient_MaxWait(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"processing"}}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{MaxWait: 60 * time.Millisecond})

	start := time.Now()
	_, err := client.TranscribeChapters(context.Background(), Audio{Data: []byte("audio-bytes")})
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("poll loop ran %s past its budget", elapsed)
	}
}

func TestAssemblyAIClient_MaxAttempts(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"processing"}}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{MaxAttempts: 3, MaxWait: 10 * time.Second})

	_, err := client.TranscribeChapters(context.Background(), Audio{Data: []byte("audio-bytes")})
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if got := fake.checks.Load(); got != 3 {
		t.Errorf("status checks = %d, want 3", got)
	}
}

func TestAssemblyAIClient_ContextCancel(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{"processing"}}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.TranscribeChapters(ctx, Audio{Data: []byte("audio-bytes")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrProviderTimeout) {
		t.Error("cancellation must not be reported as a provider timeout")
	}
}

func TestAssemblyAIClient_Unauthorized(t *testing.T) {
	fake := &fakeAssemblyAI{statuses: []string{statusCompleted}}
	client := newAssemblyAI(t, fake, AssemblyAIConfig{APIKey: "wrong"})

	_, err := client.TranscribeChapters(context.Background(), Audio{Data: []byte("audio-bytes")})
	var failed *FailedError
	if !errors.As(err, &failed) || failed.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 *FailedError, got %v", err)
	}
}

func TestAssemblyAIClient_NextInterval(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		max    time.Duration
		in     time.Duration
		want   time.Duration
	}{
		{"fixed", 1.0, 0, time.Second, time.Second},
		{"doubling", 2.0, 0, time.Second, 2 * time.Second},
		{"capped", 2.0, 3 * time.Second, 2 * time.Second, 3 * time.Second},
		{"factor below one is fixed", 0.5, 0, time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewAssemblyAIClient(AssemblyAIConfig{APIKey: "k", BackoffFactor: tt.factor, MaxPollInterval: tt.max})
			if err != nil {
				t.Fatalf("NewAssemblyAIClient() error = %v", err)
			}
			if got := client.nextInterval(tt.in); got != tt.want {
				t.Errorf("nextInterval(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewAssemblyAIClient_Defaults(t *testing.T) {
	client, err := NewAssemblyAIClient(AssemblyAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAssemblyAIClient() error = %v", err)
	}
	if client.baseURL != DefaultAssemblyAIURL {
		t.Errorf("baseURL = %q", client.baseURL)
	}
	if client.poll.PollInterval != DefaultPollInterval || client.poll.MaxWait != DefaultMaxWait || client.poll.MaxAttempts != 0 {
		t.Errorf("unexpected defaults %+v", client.poll)
	}

	if _, err := NewAssemblyAIClient(AssemblyAIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}
