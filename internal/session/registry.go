package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/windfall/shadowing/internal/errors"
	"github.com/windfall/shadowing/internal/model"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/view"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = apperrors.NotFound("session")

// ViewFactory builds the practice view of a new session.
type ViewFactory func(opts view.PracticeOptions, source recorder.Source) *view.PracticeView

// Registry keeps the open practice sessions of the server and expires the
// idle ones.
type Registry struct {
	newView ViewFactory
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry creates a Registry. Sessions idle for longer than ttl are
// closed by Sweep.
func NewRegistry(newView ViewFactory, ttl time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		newView:  newView,
		ttl:      ttl,
		now:      time.Now,
		log:      log.With().Str("component", "sessions").Logger(),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create opens a practice session for materialID.
func (r *Registry) Create(ctx context.Context, materialID int64) (*Session, error) {
	s := newSession(uuid.New(), materialID, r.now())
	s.view = r.newView(s.options(), s.source)

	if err := s.view.Open(ctx, materialID); err != nil {
		s.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info().Str("session_id", s.ID.String()).Int64("material_id", materialID).Msg("Practice session opened")
	return s, nil
}

// Get returns the session with the given id and marks it active.
func (r *Registry) Get(id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	s, ok := r.sessions[parsed]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	s.touch(r.now())
	return s, nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	r.mu.Lock()
	s, ok := r.sessions[parsed]
	delete(r.sessions, parsed)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.Close()
	r.log.Info().Str("session_id", id).Msg("Practice session closed")
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were closed.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	closeAll(ctx, expired)
	for _, s := range expired {
		r.log.Info().Str("session_id", s.ID.String()).Msg("Practice session expired")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll(context.Background())
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	closeAll(ctx, all)
	if len(all) > 0 {
		r.log.Info().Int("count", len(all)).Msg("Practice sessions closed")
	}
}

func closeAll(ctx context.Context, sessions []*Session) {
	g, _ := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			s.Close()
			return nil
		})
	}
	_ = g.Wait()
}

func formatElapsed(seconds int) string {
	return model.FormatClock(float64(seconds))
}
