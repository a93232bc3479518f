package view

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/model"
)

const (
	importSuccessMessage = "Successfully imported!"
	youTubeFailure       = "Failed to import. Please check the URL and try again."
	pdfFailure           = "Failed to import PDF. Please try again."
	pdfContentType       = "application/pdf"
)

// YouTubeImport submits a video URL for import.
type YouTubeImport struct {
	api     ImportAPI
	queries cache.Cache
	log     zerolog.Logger
	m       mutation
}

// NewYouTubeImport creates a YouTubeImport form.
func NewYouTubeImport(api ImportAPI, queries cache.Cache, log zerolog.Logger) *YouTubeImport {
	return &YouTubeImport{api: api, queries: queries, log: log.With().Str("view", "youtube_import").Logger()}
}

// Submit imports rawURL. Blank input is rejected without a request.
func (v *YouTubeImport) Submit(ctx context.Context, rawURL string) (*model.YouTubeImportResult, error) {
	videoURL := strings.TrimSpace(rawURL)
	if videoURL == "" {
		return nil, ErrEmptyURL
	}
	if err := v.m.begin(); err != nil {
		return nil, err
	}

	result, err := v.api.ImportYouTube(ctx, videoURL)
	if err != nil {
		v.log.Error().Err(err).Str("url", videoURL).Msg("YouTube import failed")
		v.m.fail(youTubeFailure)
		return nil, err
	}

	v.queries.Invalidate(cache.KeyMaterials)
	v.m.succeed(importSuccessMessage)

	v.log.Info().Int64("material_id", result.MaterialID).Str("title", result.Title).Msg("YouTube video imported")
	return result, nil
}

// State returns the inline form status.
func (v *YouTubeImport) State() MutationState {
	return v.m.snapshot()
}

// PDFImport uploads a PDF document for import.
type PDFImport struct {
	api     ImportAPI
	queries cache.Cache
	log     zerolog.Logger
	m       mutation
}

// NewPDFImport creates a PDFImport form.
func NewPDFImport(api ImportAPI, queries cache.Cache, log zerolog.Logger) *PDFImport {
	return &PDFImport{api: api, queries: queries, log: log.With().Str("view", "pdf_import").Logger()}
}

// IsPDF reports whether a file looks like a PDF, by media type first and
// by extension when the type is missing or generic.
func IsPDF(filename, contentType string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && mediaType == pdfContentType {
			return true
		}
		if err == nil && mediaType != "application/octet-stream" {
			return false
		}
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// Submit uploads document. Non-PDF files are rejected without a request.
func (v *PDFImport) Submit(ctx context.Context, filename, contentType string, document io.Reader) (*model.PDFImportResult, error) {
	if !IsPDF(filename, contentType) {
		return nil, ErrNotPDF
	}
	if err := v.m.begin(); err != nil {
		return nil, err
	}

	result, err := v.api.ImportPDF(ctx, filename, document)
	if err != nil {
		v.log.Error().Err(err).Str("filename", filename).Msg("PDF import failed")
		v.m.fail(pdfFailure)
		return nil, err
	}

	v.queries.Invalidate(cache.KeyMaterials)
	v.m.succeed(importSuccessMessage)

	v.log.Info().
		Int64("material_id", result.MaterialID).
		Int("segments", result.SegmentCount).
		Msg("PDF imported")
	return result, nil
}

// State returns the inline form status.
func (v *PDFImport) State() MutationState {
	return v.m.snapshot()
}
