package http

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/client"
	"github.com/windfall/shadowing/internal/view"
	"github.com/windfall/shadowing/pkg/response"
)

// AudioStreamer opens segment audio on the backend.
type AudioStreamer interface {
	StreamSegmentAudio(ctx context.Context, segmentID int64) (*client.AudioStream, error)
}

// SegmentHandler serves segment audio and practice history.
type SegmentHandler struct {
	log     zerolog.Logger
	audio   AudioStreamer
	history view.HistoryAPI
	queries *cache.QueryCache
}

// NewSegmentHandler creates a new segment handler.
func NewSegmentHandler(log zerolog.Logger, audio AudioStreamer, history view.HistoryAPI, queries *cache.QueryCache) *SegmentHandler {
	return &SegmentHandler{log: log, audio: audio, history: history, queries: queries}
}

// Audio handles GET /api/v1/segments/{segmentID}/audio
func (h *SegmentHandler) Audio(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "segmentID")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	stream, err := h.audio.StreamSegmentAudio(r.Context(), id)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	defer stream.Body.Close()

	if stream.ContentType != "" {
		w.Header().Set("Content-Type", stream.ContentType)
	}
	if stream.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream.Body); err != nil {
		h.log.Warn().Err(err).Int64("segment_id", id).Msg("Audio stream interrupted")
	}
}

// Practices handles GET /api/v1/segments/{segmentID}/practices
func (h *SegmentHandler) Practices(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "segmentID")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	practices, err := view.SegmentPractices(r.Context(), h.queries, h.history, id)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, practices)
}

// Practice handles GET /api/v1/practices/{practiceID}
func (h *SegmentHandler) Practice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "practiceID")
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	practice, err := view.Practice(r.Context(), h.queries, h.history, id)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, practice)
}
