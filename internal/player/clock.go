package player

import (
	"sync"
	"time"
)

// DefaultTick is how often a ClockEngine reports progress.
const DefaultTick = 50 * time.Millisecond

// ClockEngine simulates playback against the wall clock for a track of known
// length. It lets server sessions and the terminal client drive a Player
// without decoding audio.
type ClockEngine struct {
	duration float64
	tick     time.Duration

	mu       sync.Mutex
	events   Events
	position float64
	rate     float64
	regions  []Region
	playing  bool
	stop     chan struct{}
}

// NewClockEngine creates an engine for a track of duration seconds.
func NewClockEngine(duration float64, tick time.Duration) *ClockEngine {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &ClockEngine{duration: duration, tick: tick, rate: 1}
}

// ClockEngineFactory returns an EngineFactory producing ClockEngines.
func ClockEngineFactory(duration float64, tick time.Duration) EngineFactory {
	return func() Engine { return NewClockEngine(duration, tick) }
}

// Load marks the track ready on the engine's own goroutine.
func (c *ClockEngine) Load(url string, events Events) error {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()

	go func() {
		c.mu.Lock()
		ev := c.events
		c.mu.Unlock()
		if ev != nil {
			ev.Ready()
		}
	}()
	return nil
}

// Play starts advancing the position.
func (c *ClockEngine) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing || c.events == nil {
		return nil
	}
	c.playing = true
	c.stop = make(chan struct{})
	go c.run(c.stop)
	return nil
}

func (c *ClockEngine) run(stop chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			if c.stop != stop || !c.playing {
				c.mu.Unlock()
				return
			}
			c.position += now.Sub(last).Seconds() * c.rate
			last = now
			finished := c.position >= c.duration
			if finished {
				c.position = c.duration
				c.playing = false
			}
			ev := c.events
			c.mu.Unlock()

			if ev == nil {
				return
			}
			ev.TimeUpdate()
			if finished {
				ev.Finish()
				return
			}
		}
	}
}

// Pause stops advancing the position.
func (c *ClockEngine) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	stop := c.stop
	c.mu.Unlock()

	close(stop)
}

// SeekTo moves the position, clamped to the track.
func (c *ClockEngine) SeekTo(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if seconds > c.duration {
		seconds = c.duration
	}
	c.position = seconds
}

// SetPlaybackRate changes how fast the position advances.
func (c *ClockEngine) SetPlaybackRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
}

// CurrentTime returns the position in seconds.
func (c *ClockEngine) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Duration returns the track length in seconds.
func (c *ClockEngine) Duration() float64 {
	return c.duration
}

// AddRegion records a highlighted region.
func (c *ClockEngine) AddRegion(r Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions = append(c.regions, r)
}

// Regions returns the highlighted regions.
func (c *ClockEngine) Regions() []Region {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Region(nil), c.regions...)
}

// Destroy stops playback and drops the event sink.
func (c *ClockEngine) Destroy() {
	c.mu.Lock()
	c.events = nil
	playing := c.playing
	c.playing = false
	stop := c.stop
	c.mu.Unlock()

	if playing {
		close(stop)
	}
}
