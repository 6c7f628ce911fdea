package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/echospot/echospot/internal/ingest"
)

// DefaultMaxUploadBytes bounds a multipart request body.
const DefaultMaxUploadBytes = 64 << 20

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// SpotHandlers serves spot submission and title suggestion.
type SpotHandlers struct {
	pipeline       *ingest.Pipeline
	maxUploadBytes int64
}

// NewSpotHandlers creates spot handlers. maxUploadBytes <= 0 uses DefaultMaxUploadBytes.
func NewSpotHandlers(pipeline *ingest.Pipeline, maxUploadBytes int64) *SpotHandlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &SpotHandlers{pipeline: pipeline, maxUploadBytes: maxUploadBytes}
}

// SubmitSpot handles POST /spots.
//
// Multipart fields: audio, image, username, spotname, category, description,
// latitude (or lat), longitude (or lon), summary_token. Responds 201 with the
// created spot, any degradation warnings and failed post-insert hooks.
func (h *SpotHandlers) SubmitSpot(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	audio, err := formFile(r, "audio")
	if err != nil {
		h.badFile(w, r, "audio", err)
		return
	}
	image, err := formFile(r, "image")
	if err != nil {
		h.badFile(w, r, "image", err)
		return
	}

	sub := ingest.Submission{
		Username:     r.FormValue("username"),
		SpotName:     r.FormValue("spotname"),
		Category:     r.FormValue("category"),
		Description:  r.FormValue("description"),
		Latitude:     firstValue(r, "latitude", "lat"),
		Longitude:    firstValue(r, "longitude", "lon"),
		Audio:        audio,
		Image:        image,
		SummaryToken: r.FormValue("summary_token"),
	}

	res, err := h.pipeline.Submit(r.Context(), sub)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if len(res.SideEffectErrors) > 0 {
		slog.WarnContext(r.Context(), "spot created with failed side effects",
			slog.String("spot_id", res.Spot.ID),
			slog.Any("side_effect_errors", res.SideEffectErrors))
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// AudioTitle handles POST /audiotitle. It takes a multipart audio file and an
// optional username and returns a suggested title and description along with
// the summary token to present on submission.
func (h *SpotHandlers) AudioTitle(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	audio, err := formFile(r, "audio")
	if err != nil {
		h.badFile(w, r, "audio", err)
		return
	}

	ts, err := h.pipeline.SuggestTitle(r.Context(), ingest.TitleRequest{
		Username: r.FormValue("username"),
		Audio:    audio,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ts)
}

func (h *SpotHandlers) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	tooLarge := func() bool {
		writeError(w, r.Context(), http.StatusRequestEntityTooLarge, ErrorDetail{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("Request body exceeds %d bytes", h.maxUploadBytes),
		})
		return false
	}
	if r.ContentLength > h.maxUploadBytes {
		return tooLarge()
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge()
		}
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Expected a multipart/form-data body")
		return false
	}
	return true
}

func (h *SpotHandlers) badFile(w http.ResponseWriter, r *http.Request, field string, err error) {
	message := field + " file is required"
	if !errors.Is(err, http.ErrMissingFile) {
		message = "failed to read " + field + " file"
	}
	writeError(w, r.Context(), http.StatusBadRequest, ErrorDetail{
		Code:    ErrCodeValidation,
		Message: message,
		Details: map[string]string{"field": field},
	})
}

// formFile reads the named multipart file. The content type comes from the
// part header and is sniffed when the client sent none.
func formFile(r *http.Request, field string) (*ingest.File, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, http.ErrMissingFile
	}

	return &ingest.File{
		Data:        data,
		ContentType: partContentType(header, data),
		Filename:    header.Filename,
	}, nil
}

func partContentType(header *multipart.FileHeader, data []byte) string {
	ct := strings.TrimSpace(header.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return ct
}

// firstValue returns the first non-empty form value among names.
func firstValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.FormValue(name)); v != "" {
			return v
		}
	}
	return ""
}
