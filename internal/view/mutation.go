package view

import (
	"sync"

	apperrors "github.com/windfall/shadowing/internal/errors"
)

var (
	// ErrEmptyURL is returned when a blank video URL is submitted.
	ErrEmptyURL = apperrors.Validation("url is required")
	// ErrNotPDF is returned when the selected file is not a PDF.
	ErrNotPDF = apperrors.Validation("file must be a PDF")
	// ErrNoSegment is returned when navigation targets a missing segment.
	ErrNoSegment = apperrors.NotFound("segment")
	// ErrSubmitting is returned while the same form is still submitting.
	ErrSubmitting = apperrors.Busy("a submission is already in progress")
	// ErrInvalidSpeed is returned for speeds outside the offered options.
	ErrInvalidSpeed = apperrors.Validation("unsupported playback speed")
	// ErrNoPlayer is returned when the current segment has no audio player.
	ErrNoPlayer = apperrors.New(apperrors.ErrConflict, "no segment audio is loaded")
)

// MutationState is the inline status of a form or action.
type MutationState struct {
	Pending bool   `json:"pending"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type mutation struct {
	mu    sync.Mutex
	state MutationState
}

func (m *mutation) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Pending {
		return ErrSubmitting
	}
	m.state = MutationState{Pending: true}
	return nil
}

func (m *mutation) succeed(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = MutationState{Success: true, Message: message}
}

func (m *mutation) fail(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = MutationState{Error: message}
}

func (m *mutation) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Pending {
		m.state = MutationState{}
	}
}

func (m *mutation) snapshot() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
