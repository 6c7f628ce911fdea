package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/echospot/echospot/internal/discovery"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/transcribe"
)

func seedSpot(t *testing.T, a *testAPI, s *spot.Spot) {
	t.Helper()
	if err := a.spots.Insert(context.Background(), s); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}

func get(a *testAPI, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestNearbyHandler(t *testing.T) {
	a := newTestAPI(t, nil)
	seedSpot(t, a, &spot.Spot{Username: "asha", SpotName: "near", Latitude: 0.001, Longitude: 0})
	seedSpot(t, a, &spot.Spot{Username: "asha", SpotName: "here", Latitude: 0, Longitude: 0})
	seedSpot(t, a, &spot.Spot{Username: "asha", SpotName: "far", Latitude: 1, Longitude: 0})

	w := get(a, "/nearby?lat=0&lon=0")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp NearbyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Spots) != 2 || resp.Spots[0].SpotName != "here" || resp.Spots[1].SpotName != "near" {
		t.Errorf("unexpected spots %+v", resp.Spots)
	}
	if !strings.Contains(w.Body.String(), `"distance_meters"`) {
		t.Errorf("distance missing from %s", w.Body.String())
	}

	w = get(a, "/nearby?lat=0&lon=0&radius=200000")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Spots) != 2 {
		t.Errorf("radius above the cap should still exclude 111 km spot, got %+v", resp.Spots)
	}

	w = get(a, "/nearby?lat=50&lon=50")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"spots":[]`) {
		t.Errorf("empty result = %d %s", w.Code, w.Body.String())
	}
}

func TestDiscoveryHandlers_QueryValidation(t *testing.T) {
	a := newTestAPI(t, nil)

	tests := []struct {
		target    string
		wantField string
	}{
		{"/nearby?lon=0", "lat"},
		{"/nearby?lat=95&lon=0", "lat"},
		{"/nearby?lat=0&lon=abc", "lon"},
		{"/nearby?lat=0&lon=0&radius=-1", "radius"},
		{"/nearby?lat=0&lon=0&radius=NaN", "radius"},
		{"/nearby?lat=0&lon=0&radius=nan", "radius"},
		{"/intro?lat=1&lon=1", "username"},
		{"/fullspot?username=asha&lat=1", "lon"},
		{"/translation?username=asha&lat=1&lon=1", "language"},
		{"/translation/audio?username=asha&lat=1&lon=1", "language"},
		{"/return-profile", "username"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(a, tt.target)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			resp := decodeError(t, w)
			if resp.Error.Code != ErrCodeValidation || resp.Error.Details["field"] != tt.wantField {
				t.Errorf("unexpected error %+v", resp.Error)
			}
		})
	}
}

func TestPointLookupHandlers(t *testing.T) {
	a := newTestAPI(t, nil)
	summary := "Boats at dawn."
	seedSpot(t, a, &spot.Spot{
		Username: "asha", SpotName: "Old Harbour", Category: "history",
		Latitude: 12.9716, Longitude: 77.5946, ImageURL: "https://media.test/p.jpg",
		TranslatedCaptions: map[string]string{"en": "Hello", "fr": "Bonjour"},
		Summary:            &summary,
	})
	seedSpot(t, a, &spot.Spot{Username: "asha", SpotName: "No summary", Latitude: 1, Longitude: 1,
		TranslatedCaptions: map[string]string{"en": ""}})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"intro", "/intro?username=asha&lat=12.9716&lon=77.5946", http.StatusOK, `"spotname":"Old Harbour"`},
		{"intro aliases", "/intro?username=asha&latitude=12.9716&longitude=77.5946", http.StatusOK, `"image":"https://media.test/p.jpg"`},
		{"fullspot", "/fullspot?username=asha&lat=12.9716&lon=77.5946", http.StatusOK, `"translated_captions"`},
		{"translation", "/translation?username=asha&lat=12.9716&lon=77.5946&language=French", http.StatusOK, `"caption":"Bonjour"`},
		{"translation missing", "/translation?username=asha&lat=12.9716&lon=77.5946&language=Hindi", http.StatusNotFound, ErrCodeTranslationNotFound},
		{"language unsupported", "/translation?username=asha&lat=12.9716&lon=77.5946&language=Latin", http.StatusNotFound, ErrCodeLanguageNotSupported},
		{"summary", "/returnsummary?username=asha&lat=12.9716&lon=77.5946", http.StatusOK, `"summary":"Boats at dawn."`},
		{"summary unavailable", "/returnsummary?username=asha&lat=1&lon=1", http.StatusNotFound, ErrCodeSummaryUnavailable},
		{"no match", "/intro?username=ravi&lat=12.9716&lon=77.5946", http.StatusNotFound, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(a, tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestTranslationAudioHandler(t *testing.T) {
	a := newTestAPI(t, nil)
	seedSpot(t, a, &spot.Spot{
		Username: "asha", Latitude: 12.9716, Longitude: 77.5946,
		TranslatedCaptions: map[string]string{"en": "Hello", "fr": "Bonjour", "hi": ""},
	})

	w := get(a, "/translation/audio?username=asha&lat=12.9716&lon=77.5946&language=French")
	if w.Code != http.StatusServiceUnavailable || decodeError(t, w).Error.Code != ErrCodeSpeechUnavailable {
		t.Fatalf("without a speaker: status = %d, body %s", w.Code, w.Body.String())
	}

	speaker := &stubSpeaker{}
	a.discovery.WithSpeaker(speaker)

	w = get(a, "/translation/audio?username=asha&lat=12.9716&lon=77.5946&language=French")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != transcribe.SpeechContentType {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "10" {
		t.Errorf("Content-Length = %q, want 10", got)
	}
	if w.Body.String() != "fr:Bonjour" {
		t.Errorf("body = %q, want the spoken French caption", w.Body.String())
	}

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"placeholder caption", "/translation/audio?username=asha&lat=12.9716&lon=77.5946&language=Hindi", http.StatusNotFound, ErrCodeTranslationNotFound},
		{"unsupported", "/translation/audio?username=asha&lat=12.9716&lon=77.5946&language=Latin", http.StatusNotFound, ErrCodeLanguageNotSupported},
		{"no match", "/translation/audio?username=ravi&lat=12.9716&lon=77.5946&language=French", http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(a, tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := decodeError(t, w).Error.Code; code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}

	speaker.err = transcribe.ErrProviderUnavailable
	w = get(a, "/translation/audio?username=asha&lat=12.9716&lon=77.5946&language=en")
	if w.Code != http.StatusInternalServerError || decodeError(t, w).Error.Code != ErrCodeProviderDegraded {
		t.Errorf("provider failure: status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestFullSpotHandler_CountsViews(t *testing.T) {
	a := newTestAPI(t, nil)
	seedSpot(t, a, &spot.Spot{Username: "asha", Latitude: 3, Longitude: 4})

	for i := 0; i < 2; i++ {
		if w := get(a, "/fullspot?username=asha&lat=3&lon=4"); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	a.discovery.Wait()

	w := get(a, "/fullspot?username=asha&lat=3&lon=4")
	var s spot.Spot
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.ViewCount != 2 {
		t.Errorf("view count = %d, want 2 before the third read is counted", s.ViewCount)
	}
}

func TestReturnProfileHandler(t *testing.T) {
	a := newTestAPI(t, nil)
	seedSpot(t, a, &spot.Spot{Username: "asha", SpotName: "a", Latitude: 1})

	w := get(a, "/return-profile?username=asha")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var p discovery.Profile
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Username != "asha" || len(p.Spots) != 1 {
		t.Errorf("unexpected profile %+v", p)
	}

	w = get(a, "/return-profile?username=ghost")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d", w.Code)
	}
}
