package player

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a Player.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

var (
	// ErrNotReady is returned by controls used before the audio is ready.
	ErrNotReady = errors.New("player is not ready")
	// ErrClosed is returned by controls used after Close.
	ErrClosed = errors.New("player is closed")
)

// Options configures a Player.
type Options struct {
	// StartTime and EndTime scope playback to [StartTime, EndTime). Both must
	// be set for the range to apply.
	StartTime *float64
	EndTime   *float64
	// PlaybackRate defaults to 1.
	PlaybackRate float64

	OnPlayStateChange func(playing bool)
	// OnTimeUpdate receives the current time, relative to StartTime when a
	// range is active.
	OnTimeUpdate  func(current float64)
	OnStateChange func(state State)
	// OnError receives load failures reported by the engine.
	OnError func(err error)
}

// Snapshot is a point-in-time view of a Player.
type Snapshot struct {
	State        State   `json:"state"`
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
	PlaybackRate float64 `json:"playback_rate"`
	Region       *Region `json:"region,omitempty"`
	URL          string  `json:"url,omitempty"`
}

// Player drives an Engine through load, play, pause and seek, optionally
// confined to a sub-range of the track. Reaching the end of the range pauses
// playback and rewinds to the range start.
type Player struct {
	newEngine EngineFactory
	opts      Options
	region    *Region

	mu       sync.Mutex
	engine   Engine
	gen      uint64
	state    State
	url      string
	current  float64
	duration float64
	rate     float64
	closed   bool
}

// New creates a Player. It returns an error when the range is inverted or negative.
func New(newEngine EngineFactory, opts Options) (*Player, error) {
	if newEngine == nil {
		return nil, errors.New("engine factory is required")
	}

	var region *Region
	if opts.StartTime != nil && opts.EndTime != nil {
		start, end := *opts.StartTime, *opts.EndTime
		if start < 0 || end <= start {
			return nil, fmt.Errorf("invalid playback range [%.3f, %.3f)", start, end)
		}
		region = &Region{Start: start, End: end}
	}

	rate := opts.PlaybackRate
	if rate <= 0 {
		rate = 1
	}

	return &Player{
		newEngine: newEngine,
		opts:      opts,
		region:    region,
		state:     StateIdle,
		rate:      rate,
	}, nil
}

// notifier collects user callbacks so they run after the lock is released.
type notifier []func()

func (n *notifier) add(fn func()) { *n = append(*n, fn) }

func (n notifier) run() {
	for _, fn := range n {
		fn()
	}
}

// Load tears down any previous engine and starts loading url.
func (p *Player) Load(url string) error {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.releaseLocked(&n)

	p.gen++
	engine := p.newEngine()
	p.engine = engine
	p.url = url
	p.current = 0
	p.duration = 0
	p.setStateLocked(StateLoading, &n)

	if err := engine.Load(url, &engineEvents{player: p, gen: p.gen}); err != nil {
		engine.Destroy()
		p.engine = nil
		p.setStateLocked(StateIdle, &n)
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// TogglePlayPause pauses while playing, otherwise plays. When starting from
// outside the active range it rewinds to the range start first.
func (p *Player) TogglePlayPause() error {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.controllableLocked(); err != nil {
		return err
	}

	if p.state == StatePlaying {
		p.pauseLocked(&n)
		return nil
	}

	if p.region != nil {
		pos := p.engine.CurrentTime()
		if pos < p.region.Start || pos >= p.region.End {
			p.engine.SeekTo(p.region.Start)
		}
	}
	return p.playLocked(&n)
}

// Play starts playback from the current position.
func (p *Player) Play() error {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.controllableLocked(); err != nil {
		return err
	}
	if p.state == StatePlaying {
		return nil
	}
	return p.playLocked(&n)
}

// Pause pauses playback.
func (p *Player) Pause() error {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.controllableLocked(); err != nil {
		return err
	}
	if p.state == StatePlaying {
		p.pauseLocked(&n)
	}
	return nil
}

// Restart seeks to the range start, or 0 without a range, and plays.
func (p *Player) Restart() error {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.controllableLocked(); err != nil {
		return err
	}

	p.engine.SeekTo(p.rangeStart())
	p.current = 0
	if p.state == StatePlaying {
		return nil
	}
	return p.playLocked(&n)
}

// Seek moves the cursor to offset seconds, relative to the range start when a
// range is active. The target is clamped to the playable span.
func (p *Player) Seek(offset float64) error {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.controllableLocked(); err != nil {
		return err
	}

	if offset < 0 {
		offset = 0
	}
	if offset > p.duration {
		offset = p.duration
	}
	p.engine.SeekTo(p.rangeStart() + offset)
	p.current = offset
	cur := offset
	if p.opts.OnTimeUpdate != nil {
		n.add(func() { p.opts.OnTimeUpdate(cur) })
	}
	return nil
}

// SetPlaybackRate changes the speed without moving the cursor. It may be
// called in any state; the rate is applied to engines loaded later too.
func (p *Player) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("playback rate must be positive, got %v", rate)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rate = rate
	if p.engine != nil {
		p.engine.SetPlaybackRate(rate)
	}
	return nil
}

// Snapshot returns the current player view.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		State:        p.state,
		CurrentTime:  p.current,
		Duration:     p.duration,
		PlaybackRate: p.rate,
		URL:          p.url,
	}
	if p.region != nil {
		r := *p.region
		snap.Region = &r
	}
	return snap
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close destroys the engine. Events from it are ignored afterwards.
func (p *Player) Close() {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.releaseLocked(&n)
	p.closed = true
}

func (p *Player) releaseLocked(n *notifier) {
	if p.engine == nil {
		return
	}
	wasPlaying := p.state == StatePlaying
	p.engine.Destroy()
	p.engine = nil
	p.gen++
	p.setStateLocked(StateIdle, n)
	if wasPlaying && p.opts.OnPlayStateChange != nil {
		n.add(func() { p.opts.OnPlayStateChange(false) })
	}
}

func (p *Player) controllableLocked() error {
	if p.closed {
		return ErrClosed
	}
	switch p.state {
	case StateReady, StatePlaying, StatePaused:
		return nil
	default:
		return ErrNotReady
	}
}

func (p *Player) playLocked(n *notifier) error {
	if err := p.engine.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	p.setStateLocked(StatePlaying, n)
	if p.opts.OnPlayStateChange != nil {
		n.add(func() { p.opts.OnPlayStateChange(true) })
	}
	return nil
}

func (p *Player) pauseLocked(n *notifier) {
	p.engine.Pause()
	p.setStateLocked(StatePaused, n)
	if p.opts.OnPlayStateChange != nil {
		n.add(func() { p.opts.OnPlayStateChange(false) })
	}
}

func (p *Player) setStateLocked(state State, n *notifier) {
	if p.state == state {
		return
	}
	p.state = state
	if p.opts.OnStateChange != nil {
		n.add(func() { p.opts.OnStateChange(state) })
	}
}

func (p *Player) rangeStart() float64 {
	if p.region != nil {
		return p.region.Start
	}
	return 0
}

// engineEvents routes events of one engine generation back to the player.
type engineEvents struct {
	player *Player
	gen    uint64
}

func (e *engineEvents) Ready()          { e.player.onReady(e.gen) }
func (e *engineEvents) TimeUpdate()     { e.player.onTimeUpdate(e.gen) }
func (e *engineEvents) Finish()         { e.player.onFinish(e.gen) }
func (e *engineEvents) Error(err error) { e.player.onError(e.gen, err) }

func (p *Player) isCurrentLocked(gen uint64) bool {
	return !p.closed && p.engine != nil && p.gen == gen
}

func (p *Player) onReady(gen uint64) {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isCurrentLocked(gen) || p.state != StateLoading {
		return
	}

	p.engine.SetPlaybackRate(p.rate)
	if p.region != nil {
		p.duration = p.region.End - p.region.Start
		p.engine.AddRegion(*p.region)
		p.engine.SeekTo(p.region.Start)
	} else {
		p.duration = p.engine.Duration()
	}
	p.current = 0
	p.setStateLocked(StateReady, &n)
}

func (p *Player) onTimeUpdate(gen uint64) {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isCurrentLocked(gen) || p.state != StatePlaying {
		return
	}

	pos := p.engine.CurrentTime()
	if p.region != nil {
		if pos >= p.region.End {
			p.engine.Pause()
			p.engine.SeekTo(p.region.Start)
			p.current = 0
			p.setStateLocked(StatePaused, &n)
			if p.opts.OnPlayStateChange != nil {
				n.add(func() { p.opts.OnPlayStateChange(false) })
			}
		} else {
			p.current = pos - p.region.Start
			if p.current < 0 {
				p.current = 0
			}
		}
	} else {
		p.current = pos
	}

	cur := p.current
	if p.opts.OnTimeUpdate != nil {
		n.add(func() { p.opts.OnTimeUpdate(cur) })
	}
}

func (p *Player) onFinish(gen uint64) {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isCurrentLocked(gen) || p.state != StatePlaying {
		return
	}
	p.current = p.duration
	p.setStateLocked(StatePaused, &n)
	if p.opts.OnPlayStateChange != nil {
		n.add(func() { p.opts.OnPlayStateChange(false) })
	}
}

func (p *Player) onError(gen uint64, err error) {
	var n notifier
	defer func() { n.run() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isCurrentLocked(gen) {
		return
	}
	p.engine.Destroy()
	p.engine = nil
	p.gen++
	p.setStateLocked(StateIdle, &n)
	if p.opts.OnError != nil {
		n.add(func() { p.opts.OnError(err) })
	}
}
