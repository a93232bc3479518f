package store

import (
	"sync"

	"github.com/windfall/shadowing/internal/model"
)

// ViewMode selects the top-level screen.
type ViewMode string

const (
	ViewLibrary    ViewMode = "library"
	ViewPractice   ViewMode = "practice"
	ViewEvaluation ViewMode = "evaluation"
)

// DefaultPlaybackSpeed is the speed a fresh state starts with.
const DefaultPlaybackSpeed = 1.0

// SpeedOptions are the selectable playback speeds.
var SpeedOptions = []float64{0.5, 0.75, 1.0, 1.25, 1.5}

// ValidSpeed reports whether speed is one of SpeedOptions.
func ValidSpeed(speed float64) bool {
	for _, s := range SpeedOptions {
		if s == speed {
			return true
		}
	}
	return false
}

// AppState is the cross-component view state. Values are copied out of the
// Store; the slices and pointers inside are shared and must not be mutated.
type AppState struct {
	CurrentMaterial *model.MaterialDetail `json:"current_material,omitempty"`
	CurrentSegment  *model.Segment        `json:"current_segment,omitempty"`
	CurrentPractice *model.Practice       `json:"current_practice,omitempty"`
	IsRecording     bool                  `json:"is_recording"`
	IsPlaying       bool                  `json:"is_playing"`
	PlaybackSpeed   float64               `json:"playback_speed"`
	ViewMode        ViewMode              `json:"view_mode"`
}

// Initial returns the state a session starts with.
func Initial() AppState {
	return AppState{
		PlaybackSpeed: DefaultPlaybackSpeed,
		ViewMode:      ViewLibrary,
	}
}

// Action is a state transition request.
type Action interface {
	apply(s AppState) AppState
}

// Reduce applies action to s and returns the new state.
func Reduce(s AppState, action Action) AppState {
	if action == nil {
		return s
	}
	return action.apply(s)
}

// SetMaterial selects a material. Selecting another material clears the
// segment and practice selection.
type SetMaterial struct{ Material *model.MaterialDetail }

func (a SetMaterial) apply(s AppState) AppState {
	if !sameMaterial(s.CurrentMaterial, a.Material) {
		s.CurrentSegment = nil
		s.CurrentPractice = nil
	}
	s.CurrentMaterial = a.Material
	return s
}

// SetSegment selects a segment and clears the practice shown for the previous one.
type SetSegment struct{ Segment *model.Segment }

func (a SetSegment) apply(s AppState) AppState {
	if !sameSegment(s.CurrentSegment, a.Segment) {
		s.CurrentPractice = nil
	}
	s.CurrentSegment = a.Segment
	return s
}

// SetPractice records the latest practice attempt.
type SetPractice struct{ Practice *model.Practice }

func (a SetPractice) apply(s AppState) AppState {
	s.CurrentPractice = a.Practice
	return s
}

// SetRecording flags an active capture.
type SetRecording struct{ Recording bool }

func (a SetRecording) apply(s AppState) AppState {
	s.IsRecording = a.Recording
	return s
}

// SetPlaying flags active playback.
type SetPlaying struct{ Playing bool }

func (a SetPlaying) apply(s AppState) AppState {
	s.IsPlaying = a.Playing
	return s
}

// SetPlaybackSpeed changes the speed. Speeds outside SpeedOptions are ignored.
type SetPlaybackSpeed struct{ Speed float64 }

func (a SetPlaybackSpeed) apply(s AppState) AppState {
	if ValidSpeed(a.Speed) {
		s.PlaybackSpeed = a.Speed
	}
	return s
}

// SetViewMode switches the screen.
type SetViewMode struct{ Mode ViewMode }

func (a SetViewMode) apply(s AppState) AppState {
	switch a.Mode {
	case ViewLibrary, ViewPractice, ViewEvaluation:
		s.ViewMode = a.Mode
	}
	return s
}

// Reset returns to the initial state.
type Reset struct{}

func (Reset) apply(AppState) AppState { return Initial() }

func sameMaterial(a, b *model.MaterialDetail) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func sameSegment(a, b *model.Segment) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// Store holds an AppState and serializes updates to it. Subscribers are
// called after each dispatch, outside the lock, with the new state.
type Store struct {
	mu     sync.Mutex
	state  AppState
	subs   map[int]func(AppState)
	nextID int
}

// New creates a Store holding initial.
func New(initial AppState) *Store {
	return &Store{state: initial, subs: make(map[int]func(AppState))}
}

// State returns a copy of the current state.
func (s *Store) State() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies actions in order and notifies subscribers once.
func (s *Store) Dispatch(actions ...Action) AppState {
	s.mu.Lock()
	for _, a := range actions {
		s.state = Reduce(s.state, a)
	}
	state := s.state
	subs := make([]func(AppState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
	return state
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(AppState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
