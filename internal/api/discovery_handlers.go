package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/echospot/echospot/internal/discovery"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/validate"
)

// DiscoveryHandlers serves the read endpoints.
type DiscoveryHandlers struct {
	svc *discovery.Service
}

// NewDiscoveryHandlers creates discovery handlers.
func NewDiscoveryHandlers(svc *discovery.Service) *DiscoveryHandlers {
	return &DiscoveryHandlers{svc: svc}
}

// NearbyResponse is the body of GET /nearby.
type NearbyResponse struct {
	Spots []discovery.NearbySpot `json:"spots"`
}

// Nearby handles GET /nearby?lat=&lon=[&radius=].
func (h *DiscoveryHandlers) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinates(w, r)
	if !ok {
		return
	}

	var radius float64
	if raw := strings.TrimSpace(r.URL.Query().Get("radius")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v < 0 {
			validationError(w, r, "radius", "radius must be a non-negative number of meters")
			return
		}
		radius = v
	}

	spots, err := h.svc.Nearby(r.Context(), lat, lon, radius)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, NearbyResponse{Spots: spots})
}

// Intro handles GET /intro?username=&lat=&lon=.
func (h *DiscoveryHandlers) Intro(w http.ResponseWriter, r *http.Request) {
	username, lat, lon, ok := pointLookup(w, r)
	if !ok {
		return
	}
	intro, err := h.svc.Intro(r.Context(), username, lat, lon)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, intro)
}

// FullSpot handles GET /fullspot?username=&lat=&lon=. Each call counts a view.
func (h *DiscoveryHandlers) FullSpot(w http.ResponseWriter, r *http.Request) {
	username, lat, lon, ok := pointLookup(w, r)
	if !ok {
		return
	}
	s, err := h.svc.FullSpot(r.Context(), username, lat, lon)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// Translation handles GET /translation?username=&lat=&lon=&language=.
func (h *DiscoveryHandlers) Translation(w http.ResponseWriter, r *http.Request) {
	username, lat, lon, ok := pointLookup(w, r)
	if !ok {
		return
	}
	language := strings.TrimSpace(r.URL.Query().Get("language"))
	if language == "" {
		validationError(w, r, "language", "language is required")
		return
	}

	caption, err := h.svc.Translation(r.Context(), username, lat, lon, language)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, caption)
}

// TranslationAudio handles GET /translation/audio?username=&lat=&lon=&language=
// and answers with the spoken caption.
func (h *DiscoveryHandlers) TranslationAudio(w http.ResponseWriter, r *http.Request) {
	username, lat, lon, ok := pointLookup(w, r)
	if !ok {
		return
	}
	language := strings.TrimSpace(r.URL.Query().Get("language"))
	if language == "" {
		validationError(w, r, "language", "language is required")
		return
	}

	speech, err := h.svc.TranslationAudio(r.Context(), username, lat, lon, language)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", speech.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(speech.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Data)
}

// SummaryResponse is the body of GET /returnsummary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// ReturnSummary handles GET /returnsummary?username=&lat=&lon=.
func (h *DiscoveryHandlers) ReturnSummary(w http.ResponseWriter, r *http.Request) {
	username, lat, lon, ok := pointLookup(w, r)
	if !ok {
		return
	}
	text, err := h.svc.Summary(r.Context(), username, lat, lon)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, SummaryResponse{Summary: text})
}

// ReturnProfile handles GET /return-profile?username=.
func (h *DiscoveryHandlers) ReturnProfile(w http.ResponseWriter, r *http.Request) {
	username, err := validate.Username(r.URL.Query().Get("username"))
	if err != nil {
		validationError(w, r, "username", "username: "+err.Error())
		return
	}

	p, err := h.svc.Profile(r.Context(), username)
	if err != nil {
		if errors.Is(err, spot.ErrNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// pointLookup reads the (username, lat, lon) triple that identifies a spot.
func pointLookup(w http.ResponseWriter, r *http.Request) (string, float64, float64, bool) {
	username, err := validate.Username(r.URL.Query().Get("username"))
	if err != nil {
		validationError(w, r, "username", "username: "+err.Error())
		return "", 0, 0, false
	}
	lat, lon, ok := coordinates(w, r)
	return username, lat, lon, ok
}

// coordinates reads lat/lon, accepting latitude/longitude as aliases.
func coordinates(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	q := r.URL.Query()
	lat, err := validate.Latitude(queryValue(q.Get("lat"), q.Get("latitude")))
	if err != nil {
		validationError(w, r, "lat", "lat: "+err.Error())
		return 0, 0, false
	}
	lon, err := validate.Longitude(queryValue(q.Get("lon"), q.Get("longitude")))
	if err != nil {
		validationError(w, r, "lon", "lon: "+err.Error())
		return 0, 0, false
	}
	return lat, lon, true
}

func queryValue(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func validationError(w http.ResponseWriter, r *http.Request, field, message string) {
	writeError(w, r.Context(), http.StatusBadRequest, ErrorDetail{
		Code:    ErrCodeValidation,
		Message: message,
		Details: map[string]string{"field": field},
	})
}
