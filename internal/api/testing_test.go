package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/echospot/echospot/internal/badge"
	"github.com/echospot/echospot/internal/discovery"
	"github.com/echospot/echospot/internal/ingest"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/summary"
	"github.com/echospot/echospot/internal/transcribe"
	"github.com/echospot/echospot/internal/upload"
	"github.com/echospot/echospot/internal/user"
)

type stubTranscriber struct {
	err error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio transcribe.Audio) (*transcribe.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &transcribe.Result{Text: "Welcome to the old harbour", Language: "en"}, nil
}

type stubChapters struct{}

func (stubChapters) TranscribeChapters(ctx context.Context, audio transcribe.Audio) (*transcribe.ChapterResult, error) {
	return &transcribe.ChapterResult{Text: "...", Title: "Harbour walk", Summary: "A walk along the harbour."}, nil
}

type stubTranslator struct{}

func (stubTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

type stubSpeaker struct {
	err error
}

func (s *stubSpeaker) Speak(ctx context.Context, text, language string) (*transcribe.Speech, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &transcribe.Speech{Data: []byte(language + ":" + text), ContentType: transcribe.SpeechContentType}, nil
}

type testAPI struct {
	handler     http.Handler
	spots       *spot.InMemoryRepository
	blobs       *upload.MemoryStore
	discovery   *discovery.Service
	transcriber *stubTranscriber
}

func newTestAPI(t *testing.T, mutate func(*RouterConfig)) *testAPI {
	t.Helper()

	a := &testAPI{
		spots:       spot.NewInMemoryRepository(),
		blobs:       upload.NewMemoryStore("https://media.test"),
		transcriber: &stubTranscriber{},
	}
	users := user.NewInMemoryRepository()
	counter := badge.NewCounter(badge.NewInMemoryRepository(), a.spots, users, 10)

	pipeline, err := ingest.NewPipeline(ingest.Deps{
		Blobs:              a.blobs,
		Transcriber:        a.transcriber,
		ChapterTranscriber: stubChapters{},
		Translator:         stubTranslator{},
		Summaries:          summary.NewMemoryStore(),
		Spots:              a.spots,
		Counter:            counter,
	}, ingest.Config{})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	a.discovery = discovery.NewService(a.spots, users, counter, discovery.Config{}, nil)

	cfg := RouterConfig{
		Spots:     NewSpotHandlers(pipeline, 0),
		Discovery: NewDiscoveryHandlers(a.discovery),
		Health:    NewHealthHandlers(HealthHandlersConfig{}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a.handler = NewRouter(cfg)
	return a
}

type formFileSpec struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// multipartBody builds a multipart/form-data body and returns it with its content type.
func multipartBody(t *testing.T, fields map[string]string, files ...formFileSpec) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &buf, mw.FormDataContentType()
}

var (
	audioPart = formFileSpec{field: "audio", filename: "walk.mp3", contentType: "audio/mpeg", data: []byte("ID3 audio bytes")}
	imagePart = formFileSpec{field: "image", filename: "harbour.jpg", contentType: "image/jpeg", data: []byte("\xff\xd8\xff\xe0 jpeg")}
)
