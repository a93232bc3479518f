package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/errors"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/session"
)

// Message types sent by the browser.
const (
	TypePing           = "ping"
	TypePlayerPlay     = "player.play"
	TypePlayerPause    = "player.pause"
	TypePlayerToggle   = "player.toggle"
	TypePlayerRestart  = "player.restart"
	TypePlayerSeek     = "player.seek"
	TypePlayerRate     = "player.rate"
	TypeRecorderStart  = "recorder.start"
	TypeRecorderChunk  = "recorder.chunk"
	TypeRecorderStop   = "recorder.stop"
	TypePong           = "pong"
	TypeError          = "error"
	TypePlayerSnapshot = "player.snapshot"
)

// Handler handles WebSocket messages of a practice session.
type Handler struct {
	log zerolog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{log: log}
}

// Response represents a WebSocket response.
type Response struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SeekPayload moves the cursor, in seconds relative to the segment start.
type SeekPayload struct {
	Offset float64 `json:"offset"`
}

// RatePayload changes the playback speed.
type RatePayload struct {
	Speed float64 `json:"speed"`
}

// ChunkPayload carries captured audio. Data is base64 in JSON.
type ChunkPayload struct {
	Data []byte `json:"data"`
}

// Handle processes one message from clientID for s. A nil response means
// nothing is sent back directly; state changes arrive as session events.
// reply receives results of work that finishes after Handle returns.
func (h *Handler) Handle(ctx context.Context, s *session.Session, clientID, msgType string, payload json.RawMessage, reply func([]byte)) ([]byte, error) {
	h.log.Debug().
		Str("client_id", clientID).
		Str("session_id", s.ID.String()).
		Str("type", msgType).
		Msg("Handling WebSocket message")

	v := s.View()

	switch msgType {
	case TypePing:
		return h.response(TypePong, map[string]string{
			"message": "pong",
		})

	case TypePlayerPlay, TypePlayerPause, TypePlayerToggle, TypePlayerRestart, TypePlayerSeek:
		p := v.Player()
		if p == nil {
			return h.errorResponse(errors.New(errors.ErrConflict, "no segment is loaded"))
		}
		if err := h.control(p, msgType, payload); err != nil {
			return h.errorResponse(err)
		}
		return h.response(TypePlayerSnapshot, p.Snapshot())

	case TypePlayerRate:
		var rate RatePayload
		if err := json.Unmarshal(payload, &rate); err != nil {
			return h.errorResponse(errors.Validation("invalid rate payload"))
		}
		if err := v.SetSpeed(rate.Speed); err != nil {
			return h.errorResponse(err)
		}
		return nil, nil

	case TypeRecorderStart:
		if err := v.StartRecording(ctx); err != nil {
			return h.errorResponse(err)
		}
		return nil, nil

	case TypeRecorderChunk:
		var chunk ChunkPayload
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return h.errorResponse(errors.Validation("invalid chunk payload"))
		}
		return h.Chunk(s, chunk.Data)

	case TypeRecorderStop:
		// Upload and evaluation may take minutes. The result is published
		// as an evaluation event; only failures come back to this client.
		go func() {
			if _, err := v.StopRecording(ctx); err != nil {
				h.log.Warn().Err(err).
					Str("client_id", clientID).
					Str("session_id", s.ID.String()).
					Msg("Recording submission failed")
				if response, _ := h.errorResponse(err); response != nil {
					reply(response)
				}
			}
		}()
		return nil, nil

	default:
		return h.errorResponse(errors.Validation("unknown message type: " + msgType))
	}
}

// Chunk feeds captured audio into the session recorder.
func (h *Handler) Chunk(s *session.Session, data []byte) ([]byte, error) {
	if err := s.Source().Push(data); err != nil {
		return h.errorResponse(errors.New(errors.ErrConflict, "not recording"))
	}
	return nil, nil
}

func (h *Handler) control(p *player.Player, msgType string, payload json.RawMessage) error {
	switch msgType {
	case TypePlayerPlay:
		return p.Play()
	case TypePlayerPause:
		return p.Pause()
	case TypePlayerToggle:
		return p.TogglePlayPause()
	case TypePlayerRestart:
		return p.Restart()
	default:
		var seek SeekPayload
		if err := json.Unmarshal(payload, &seek); err != nil {
			return errors.Validation("invalid seek payload")
		}
		return p.Seek(seek.Offset)
	}
}

func (h *Handler) response(msgType string, payload interface{}) ([]byte, error) {
	resp := Response{
		Type:    msgType,
		Payload: payload,
	}
	return json.Marshal(resp)
}

func (h *Handler) errorResponse(err error) ([]byte, error) {
	body := map[string]string{"error": err.Error()}
	if appErr, ok := errors.As(err); ok {
		body = map[string]string{"code": string(appErr.Code), "error": appErr.Message}
	}
	return h.response(TypeError, body)
}
