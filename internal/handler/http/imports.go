package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/errors"
	"github.com/windfall/shadowing/internal/view"
	"github.com/windfall/shadowing/pkg/response"
)

// ImportHandler serves the YouTube and PDF import forms.
type ImportHandler struct {
	log      zerolog.Logger
	youtube  *view.YouTubeImport
	pdf      *view.PDFImport
	maxBytes int64
}

// NewImportHandler creates a new import handler.
func NewImportHandler(log zerolog.Logger, youtube *view.YouTubeImport, pdf *view.PDFImport, maxBytes int64) *ImportHandler {
	return &ImportHandler{log: log, youtube: youtube, pdf: pdf, maxBytes: maxBytes}
}

// YouTubeRequest represents the request body for a video import.
type YouTubeRequest struct {
	URL string `json:"url"`
}

// YouTube handles POST /api/v1/imports/youtube
func (h *ImportHandler) YouTube(w http.ResponseWriter, r *http.Request) {
	var req YouTubeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.log, errors.Validation("invalid request body"))
		return
	}

	result, err := h.youtube.Submit(r.Context(), req.URL)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.Created(w, map[string]interface{}{
		"result": result,
		"form":   h.youtube.State(),
	})
}

// PDF handles POST /api/v1/imports/pdf
//
// Request: multipart/form-data with a "file" field
func (h *ImportHandler) PDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		handleError(w, h.log, errors.Validation("failed to parse multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handleError(w, h.log, errors.Validation("file is required"))
		return
	}
	defer file.Close()

	result, err := h.pdf.Submit(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.Created(w, map[string]interface{}{
		"result": result,
		"form":   h.pdf.State(),
	})
}
