package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/echospot/echospot/internal/idempotency"
	"github.com/echospot/echospot/internal/ingest"
	"github.com/echospot/echospot/internal/middleware"
	"github.com/echospot/echospot/internal/transcribe"
)

func submitFields() map[string]string {
	return map[string]string{
		"username":    "asha",
		"spotname":    "Old Harbour",
		"category":    "history",
		"description": "Where the boats come in.",
		"lat":         "51.5074",
		"lon":         "-0.1278",
	}
}

func TestSubmitSpot_Created(t *testing.T) {
	a := newTestAPI(t, nil)

	body, ct := multipartBody(t, submitFields(), audioPart, imagePart)
	req := httptest.NewRequest(http.MethodPost, "/spots", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var res ingest.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Spot == nil || res.Spot.Username != "asha" || res.Spot.Latitude != 51.5074 {
		t.Errorf("unexpected spot %+v", res.Spot)
	}
	if res.Spot.TranslatedCaptions["fr"] != "[fr-FR] Welcome to the old harbour" {
		t.Errorf("captions = %v", res.Spot.TranslatedCaptions)
	}
	if res.Warnings == nil || len(res.Warnings) != 0 {
		t.Errorf("warnings = %#v, want empty list", res.Warnings)
	}
	if a.blobs.Len() != 2 {
		t.Errorf("blobs = %d", a.blobs.Len())
	}
}

func TestSubmitSpot_IdempotentRetry(t *testing.T) {
	a := newTestAPI(t, func(cfg *RouterConfig) {
		cfg.Idempotency = idempotency.NewInMemoryRepository()
	})

	var bodies []string
	for i := 0; i < 2; i++ {
		body, ct := multipartBody(t, submitFields(), audioPart, imagePart)
		req := httptest.NewRequest(http.MethodPost, "/spots", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set(middleware.IdempotencyKeyHeader, "phone-retry-7")
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("attempt %d: status = %d, body %s", i, w.Code, w.Body.String())
		}
		bodies = append(bodies, w.Body.String())
	}

	if bodies[0] != bodies[1] {
		t.Error("retry should replay the first response")
	}
	n, err := a.spots.CountByUsername(context.Background(), "asha")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("spots stored = %d, want 1", n)
	}
	if a.blobs.Len() != 2 {
		t.Errorf("blobs = %d, want 2", a.blobs.Len())
	}
}

func TestSubmitSpot_DegradedTranscriptionStillCreated(t *testing.T) {
	a := newTestAPI(t, nil)
	a.transcriber.err = transcribe.ErrProviderUnavailable

	fields := submitFields()
	delete(fields, "lat")
	delete(fields, "lon")
	fields["latitude"] = "12.97"
	fields["longitude"] = "77.59"
	body, ct := multipartBody(t, fields, audioPart, imagePart)
	req := httptest.NewRequest(http.MethodPost, "/spots", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), ingest.WarningProviderDegraded) {
		t.Errorf("expected degradation warning in %s", w.Body.String())
	}
}

func TestSubmitSpot_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		files     []formFileSpec
		wantField string
	}{
		{"missing audio", submitFields(), []formFileSpec{imagePart}, "audio"},
		{"missing image", submitFields(), []formFileSpec{audioPart}, "image"},
		{
			name:      "bad latitude",
			fields:    map[string]string{"username": "asha", "spotname": "x", "lat": "abc", "lon": "1"},
			files:     []formFileSpec{audioPart, imagePart},
			wantField: "latitude",
		},
		{
			name:      "unsupported audio type",
			fields:    submitFields(),
			files:     []formFileSpec{{field: "audio", filename: "a.txt", contentType: "text/plain", data: []byte("hello")}, imagePart},
			wantField: "audio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, nil)
			body, ct := multipartBody(t, tt.fields, tt.files...)
			req := httptest.NewRequest(http.MethodPost, "/spots", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			a.handler.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Error.Code != ErrCodeValidation || resp.Error.Details["field"] != tt.wantField {
				t.Errorf("unexpected error %+v", resp.Error)
			}
			if a.blobs.Len() != 0 {
				t.Errorf("no upload expected, got %d", a.blobs.Len())
			}
		})
	}
}

func TestSubmitSpot_NotMultipart(t *testing.T) {
	a := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/spots", strings.NewReader(`{"username":"asha"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestSubmitSpot_BodyTooLarge(t *testing.T) {
	a := newTestAPI(t, func(cfg *RouterConfig) {
		cfg.Spots.maxUploadBytes = 64
	})

	body, ct := multipartBody(t, submitFields(), audioPart, imagePart)
	req := httptest.NewRequest(http.MethodPost, "/spots", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestAudioTitle_TokenAttachesSummary(t *testing.T) {
	a := newTestAPI(t, nil)

	body, ct := multipartBody(t, map[string]string{"username": "asha"}, audioPart)
	req := httptest.NewRequest(http.MethodPost, "/audiotitle", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var ts ingest.TitleSuggestion
	if err := json.Unmarshal(w.Body.Bytes(), &ts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ts.Title != "Harbour walk" || ts.SummaryToken == "" {
		t.Fatalf("unexpected suggestion %+v", ts)
	}

	fields := submitFields()
	fields["summary_token"] = ts.SummaryToken
	body, ct = multipartBody(t, fields, audioPart, imagePart)
	req = httptest.NewRequest(http.MethodPost, "/spots", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	summaryReq := httptest.NewRequest(http.MethodGet, "/returnsummary?username=asha&lat=51.5074&lon=-0.1278", nil)
	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, summaryReq)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "A walk along the harbour.") {
		t.Errorf("returnsummary = %d %s", w.Code, w.Body.String())
	}
}

func TestAudioTitle_MissingAudio(t *testing.T) {
	a := newTestAPI(t, nil)
	body, ct := multipartBody(t, map[string]string{"username": "asha"})
	req := httptest.NewRequest(http.MethodPost, "/audiotitle", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}
