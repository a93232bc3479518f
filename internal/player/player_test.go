package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a passive engine; tests fire its events by hand.
type fakeEngine struct {
	mu        sync.Mutex
	url       string
	events    Events
	position  float64
	duration  float64
	rate      float64
	playing   bool
	regions   []Region
	destroyed bool
	loadErr   error
	seeks     []float64
}

func (f *fakeEngine) Load(url string, events Events) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.events = events
	return f.loadErr
}

func (f *fakeEngine) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	return nil
}

func (f *fakeEngine) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeEngine) SeekTo(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = seconds
	f.seeks = append(f.seeks, seconds)
}

func (f *fakeEngine) SetPlaybackRate(rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
}

func (f *fakeEngine) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeEngine) Duration() float64 { return f.duration }

func (f *fakeEngine) AddRegion(r Region) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, r)
}

func (f *fakeEngine) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	f.playing = false
}

// advance moves the playhead and reports progress like a real engine would.
func (f *fakeEngine) advance(to float64) {
	f.mu.Lock()
	f.position = to
	ev := f.events
	f.mu.Unlock()
	ev.TimeUpdate()
}

type harness struct {
	engines   []*fakeEngine
	playState []bool
	times     []float64
}

func (h *harness) factory(duration float64) EngineFactory {
	return func() Engine {
		e := &fakeEngine{duration: duration, rate: 1}
		h.engines = append(h.engines, e)
		return e
	}
}

func (h *harness) last() *fakeEngine { return h.engines[len(h.engines)-1] }

func ptr(v float64) *float64 { return &v }

func newRangedPlayer(t *testing.T, h *harness, start, end float64) *Player {
	t.Helper()
	p, err := New(h.factory(120), Options{
		StartTime:         ptr(start),
		EndTime:           ptr(end),
		OnPlayStateChange: func(playing bool) { h.playState = append(h.playState, playing) },
		OnTimeUpdate:      func(cur float64) { h.times = append(h.times, cur) },
	})
	require.NoError(t, err)
	require.NoError(t, p.Load("http://backend/api/segments/1/audio"))
	h.last().events.Ready()
	return p
}

func TestPlayer_RangeReadyReportsRangeDurationAndSeeksToStart(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)

	snap := p.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, 15.0, snap.Duration)
	assert.Equal(t, 0.0, snap.CurrentTime)
	assert.Equal(t, &Region{Start: 10, End: 25}, snap.Region)

	e := h.last()
	assert.Equal(t, 10.0, e.CurrentTime())
	assert.Equal(t, []Region{{Start: 10, End: 25}}, e.regions)
}

func TestPlayer_NoRangeUsesTrackDuration(t *testing.T) {
	h := &harness{}
	p, err := New(h.factory(42), Options{})
	require.NoError(t, err)
	require.NoError(t, p.Load("a.mp3"))
	h.last().events.Ready()

	assert.Equal(t, 42.0, p.Snapshot().Duration)
	assert.Empty(t, h.last().regions)
	assert.Nil(t, p.Snapshot().Region)
}

func TestPlayer_OnlyStartTimeIsNotARange(t *testing.T) {
	h := &harness{}
	p, err := New(h.factory(42), Options{StartTime: ptr(5)})
	require.NoError(t, err)
	require.NoError(t, p.Load("a.mp3"))
	h.last().events.Ready()

	assert.Equal(t, 42.0, p.Snapshot().Duration)
}

func TestPlayer_TimeIsRelativeToRangeStart(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	require.NoError(t, p.TogglePlayPause())

	h.last().advance(13.5)

	assert.Equal(t, 3.5, p.Snapshot().CurrentTime)
	assert.Equal(t, []float64{3.5}, h.times)
}

func TestPlayer_ReachingRangeEndPausesAndRewinds(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	require.NoError(t, p.TogglePlayPause())
	e := h.last()
	require.True(t, e.playing)

	e.advance(25)

	assert.Equal(t, StatePaused, p.State())
	assert.False(t, e.playing)
	assert.Equal(t, 10.0, e.CurrentTime())
	assert.Equal(t, 0.0, p.Snapshot().CurrentTime)
	assert.Equal(t, []bool{true, false}, h.playState)
}

func TestPlayer_PlayFromOutsideRangeSeeksToStart(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	e := h.last()

	e.SeekTo(40)
	require.NoError(t, p.TogglePlayPause())
	assert.Equal(t, 10.0, e.CurrentTime())
	assert.Equal(t, StatePlaying, p.State())

	require.NoError(t, p.TogglePlayPause())
	assert.Equal(t, StatePaused, p.State())

	e.SeekTo(12)
	require.NoError(t, p.TogglePlayPause())
	assert.Equal(t, 12.0, e.CurrentTime(), "inside the range the position is kept")
}

func TestPlayer_Restart(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	e := h.last()
	e.SeekTo(20)

	require.NoError(t, p.Restart())
	assert.Equal(t, 10.0, e.CurrentTime())
	assert.Equal(t, StatePlaying, p.State())

	h2 := &harness{}
	p2, err := New(h2.factory(30), Options{})
	require.NoError(t, err)
	require.NoError(t, p2.Load("b.mp3"))
	h2.last().events.Ready()
	h2.last().SeekTo(17)

	require.NoError(t, p2.Restart())
	assert.Equal(t, 0.0, h2.last().CurrentTime())
}

func TestPlayer_ControlsRequireReady(t *testing.T) {
	h := &harness{}
	p, err := New(h.factory(30), Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, p.TogglePlayPause(), ErrNotReady)

	require.NoError(t, p.Load("a.mp3"))
	assert.Equal(t, StateLoading, p.State())
	assert.ErrorIs(t, p.Restart(), ErrNotReady)
	assert.ErrorIs(t, p.Seek(1), ErrNotReady)
}

func TestPlayer_PlaybackRateKeepsPosition(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	require.NoError(t, p.TogglePlayPause())
	e := h.last()
	e.advance(14)

	require.NoError(t, p.SetPlaybackRate(0.75))
	assert.Equal(t, 0.75, e.rate)
	assert.Equal(t, 14.0, e.CurrentTime())
	assert.Equal(t, StatePlaying, p.State())

	assert.Error(t, p.SetPlaybackRate(0))
}

func TestPlayer_RateSetBeforeLoadIsApplied(t *testing.T) {
	h := &harness{}
	p, err := New(h.factory(30), Options{PlaybackRate: 1.5})
	require.NoError(t, err)
	require.NoError(t, p.SetPlaybackRate(0.5))

	require.NoError(t, p.Load("a.mp3"))
	h.last().events.Ready()
	assert.Equal(t, 0.5, h.last().rate)
}

func TestPlayer_SeekIsClampedToRange(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	e := h.last()

	require.NoError(t, p.Seek(4))
	assert.Equal(t, 14.0, e.CurrentTime())

	require.NoError(t, p.Seek(100))
	assert.Equal(t, 25.0, e.CurrentTime())

	require.NoError(t, p.Seek(-3))
	assert.Equal(t, 10.0, e.CurrentTime())
}

func TestPlayer_ReloadReleasesPreviousEngine(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	require.NoError(t, p.TogglePlayPause())
	first := h.last()

	require.NoError(t, p.Load("http://backend/api/segments/2/audio"))
	assert.True(t, first.destroyed)
	assert.Equal(t, StateLoading, p.State())

	// Late events from the old engine are ignored.
	first.events.Ready()
	first.events.Finish()
	assert.Equal(t, StateLoading, p.State())

	h.last().events.Ready()
	assert.Equal(t, StateReady, p.State())
}

func TestPlayer_CloseReleasesEngine(t *testing.T) {
	h := &harness{}
	p := newRangedPlayer(t, h, 10, 25)
	e := h.last()

	p.Close()
	assert.True(t, e.destroyed)
	assert.Equal(t, StateIdle, p.State())
	assert.ErrorIs(t, p.Load("x"), ErrClosed)
	assert.ErrorIs(t, p.TogglePlayPause(), ErrClosed)

	e.events.TimeUpdate()
	assert.Equal(t, StateIdle, p.State())
}

func TestPlayer_FinishWithoutRange(t *testing.T) {
	h := &harness{}
	var playing []bool
	p, err := New(h.factory(30), Options{OnPlayStateChange: func(v bool) { playing = append(playing, v) }})
	require.NoError(t, err)
	require.NoError(t, p.Load("a.mp3"))
	h.last().events.Ready()
	require.NoError(t, p.Play())

	h.last().events.Finish()
	assert.Equal(t, StatePaused, p.State())
	assert.Equal(t, 30.0, p.Snapshot().CurrentTime)
	assert.Equal(t, []bool{true, false}, playing)
}

func TestPlayer_LoadErrorReturnsToIdle(t *testing.T) {
	var reported error
	p, err := New(func() Engine { return &fakeEngine{loadErr: errors.New("404")} }, Options{})
	require.NoError(t, err)
	assert.Error(t, p.Load("missing.mp3"))
	assert.Equal(t, StateIdle, p.State())

	h := &harness{}
	p2, err := New(h.factory(10), Options{OnError: func(err error) { reported = err }})
	require.NoError(t, err)
	require.NoError(t, p2.Load("a.mp3"))
	h.last().events.Error(errors.New("decode failed"))
	assert.Equal(t, StateIdle, p2.State())
	assert.True(t, h.last().destroyed)
	assert.EqualError(t, reported, "decode failed")
}

func TestNew_RejectsInvalidRange(t *testing.T) {
	h := &harness{}
	_, err := New(h.factory(10), Options{StartTime: ptr(5), EndTime: ptr(5)})
	assert.Error(t, err)
	_, err = New(h.factory(10), Options{StartTime: ptr(-1), EndTime: ptr(5)})
	assert.Error(t, err)
	_, err = New(nil, Options{})
	assert.Error(t, err)
}

func TestPlayer_WithClockEngineStopsAtRangeEnd(t *testing.T) {
	var mu sync.Mutex
	var states []bool
	p, err := New(ClockEngineFactory(10, 5*time.Millisecond), Options{
		StartTime:    ptr(1),
		EndTime:      ptr(1.1),
		PlaybackRate: 1,
		OnPlayStateChange: func(playing bool) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, playing)
		},
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Load("sim"))
	require.Eventually(t, func() bool { return p.State() == StateReady }, time.Second, time.Millisecond)
	require.NoError(t, p.TogglePlayPause())

	require.Eventually(t, func() bool { return p.State() == StatePaused }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0.0, p.Snapshot().CurrentTime)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, states)
}
