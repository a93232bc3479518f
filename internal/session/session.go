package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/view"
)

// Event types pushed to session listeners.
const (
	EventPlayerState   = "player.state"
	EventPlayerTime    = "player.time"
	EventRecorderState = "recorder.state"
	EventRecorderTick  = "recorder.tick"
	EventEvaluation    = "evaluation"
)

// Event is an update pushed by a session.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Session is one open practice view with its own recorder feed.
type Session struct {
	ID         uuid.UUID
	MaterialID int64
	CreatedAt  time.Time

	view   *view.PracticeView
	source *recorder.PushSource

	mu       sync.Mutex
	lastSeen time.Time
	subs     map[int]func(Event)
	nextSub  int
	closed   bool
}

func newSession(id uuid.UUID, materialID int64, now time.Time) *Session {
	return &Session{
		ID:         id,
		MaterialID: materialID,
		CreatedAt:  now,
		source:     recorder.NewPushSource(0),
		lastSeen:   now,
		subs:       make(map[int]func(Event)),
	}
}

// View returns the practice view of the session.
func (s *Session) View() *view.PracticeView {
	return s.view
}

// Source returns the feed recorder chunks are pushed into.
func (s *Session) Source() *recorder.PushSource {
	return s.source
}

// Subscribe registers fn for pushed events and returns a function that
// removes it. fn must not block.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) publish(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (s *Session) options() view.PracticeOptions {
	return view.PracticeOptions{
		OnPlayerState: func(state player.State) {
			s.publish(Event{Type: EventPlayerState, Payload: map[string]interface{}{"state": state}})
		},
		OnPlayerTime: func(current float64) {
			s.publish(Event{Type: EventPlayerTime, Payload: map[string]interface{}{"current_time": current}})
		},
		OnRecorder: func(state recorder.State) {
			s.publish(Event{Type: EventRecorderState, Payload: map[string]interface{}{"state": state}})
		},
		OnRecorderTick: func(elapsed int) {
			s.publish(Event{Type: EventRecorderTick, Payload: map[string]interface{}{
				"elapsed": elapsed,
				"display": formatElapsed(elapsed),
			}})
		},
		OnEvaluation: func(result view.EvaluationView) {
			s.publish(Event{Type: EventEvaluation, Payload: result})
		},
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close releases the view. Listeners receive nothing afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[int]func(Event))
	s.mu.Unlock()

	if s.view != nil {
		s.view.Close()
	}
}
