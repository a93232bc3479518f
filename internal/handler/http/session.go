package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/errors"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/session"
	"github.com/windfall/shadowing/internal/view"
	"github.com/windfall/shadowing/pkg/response"
)

// SessionHandler serves practice sessions: one PracticeView per session.
type SessionHandler struct {
	log       zerolog.Logger
	sessions  *session.Registry
	maxUpload int64
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(log zerolog.Logger, sessions *session.Registry, maxUpload int64) *SessionHandler {
	return &SessionHandler{log: log, sessions: sessions, maxUpload: maxUpload}
}

// SessionResponse is a practice session with its current screen.
type SessionResponse struct {
	SessionID string                `json:"session_id"`
	Practice  view.PracticeSnapshot `json:"practice"`
}

// CreateSessionRequest represents the request body for opening a session.
type CreateSessionRequest struct {
	MaterialID int64 `json:"material_id"`
}

// SpeedRequest represents the request body for a speed change.
type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.log, errors.Validation("invalid request body"))
		return
	}
	if req.MaterialID <= 0 {
		handleError(w, h.log, errors.Validation("material_id is required"))
		return
	}

	s, err := h.sessions.Create(r.Context(), req.MaterialID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.Created(w, snapshot(s))
}

// Get handles GET /api/v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, snapshot(s))
}

// Delete handles DELETE /api/v1/sessions/{sessionID}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		handleError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

// Next handles POST /api/v1/sessions/{sessionID}/next
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(v *view.PracticeView) error { return v.Next() })
}

// Prev handles POST /api/v1/sessions/{sessionID}/prev
func (h *SessionHandler) Prev(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(v *view.PracticeView) error { return v.Prev() })
}

// Jump handles POST /api/v1/sessions/{sessionID}/segments/{index}
func (h *SessionHandler) Jump(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		handleError(w, h.log, errors.Validation("invalid index"))
		return
	}
	h.navigate(w, r, func(v *view.PracticeView) error { return v.Jump(index) })
}

// Speed handles PUT /api/v1/sessions/{sessionID}/speed
func (h *SessionHandler) Speed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.log, errors.Validation("invalid request body"))
		return
	}
	h.navigate(w, r, func(v *view.PracticeView) error { return v.SetSpeed(req.Speed) })
}

// Recording handles POST /api/v1/sessions/{sessionID}/recording
//
// Request: multipart/form-data with a "file" field holding the recording.
// The recording is uploaded for the current segment and then evaluated.
func (h *SessionHandler) Recording(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		handleError(w, h.log, errors.Validation("failed to parse multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handleError(w, h.log, errors.Validation("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handleError(w, h.log, errors.Validation("failed to read recording"))
		return
	}
	if len(data) == 0 {
		handleError(w, h.log, recorder.ErrEmptyRecording)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = recorder.DefaultContentType
	}

	result, err := s.View().Submit(r.Context(), recorder.Recording{
		Data:        data,
		ContentType: contentType,
		Filename:    recorder.DefaultFilename,
	})
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (h *SessionHandler) navigate(w http.ResponseWriter, r *http.Request, action func(v *view.PracticeView) error) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := action(s.View()); err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, snapshot(s))
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		handleError(w, h.log, err)
		return nil, false
	}
	return s, true
}

func snapshot(s *session.Session) SessionResponse {
	return SessionResponse{
		SessionID: s.ID.String(),
		Practice:  s.View().Snapshot(),
	}
}
