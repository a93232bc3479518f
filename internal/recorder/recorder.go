package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/windfall/shadowing/internal/errors"
)

// State is the recorder lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

const (
	// DefaultContentType is the container produced by browser capture.
	DefaultContentType = "audio/webm"
	// DefaultFilename is the name recordings are uploaded under.
	DefaultFilename = "recording.webm"
	// DefaultTickInterval is the elapsed counter granularity.
	DefaultTickInterval = time.Second
)

var (
	// ErrBusy is returned by Start while a previous recording is being submitted.
	ErrBusy = apperrors.Busy("a previous recording is still being submitted")
	// ErrAlreadyRecording is returned by Start while a capture is active.
	ErrAlreadyRecording = apperrors.New(apperrors.ErrConflict, "recording already in progress")
	// ErrNotRecording is returned by Stop when no capture is active.
	ErrNotRecording = apperrors.New(apperrors.ErrConflict, "not recording")
	// ErrEmptyRecording is returned by Stop when nothing was captured.
	ErrEmptyRecording = apperrors.Validation("recording is empty")
)

// Stream is an open capture. Chunks delivers audio until the stream is
// stopped; the channel is closed after the last chunk.
type Stream interface {
	Chunks() <-chan []byte
	// Stop finalizes the capture and releases the device.
	Stop() error
}

// Source opens capture streams. Open fails when access to the device is denied.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Recording is a finalized capture.
type Recording struct {
	Data        []byte
	ContentType string
	Filename    string
	// Elapsed is the counter value in seconds at stop.
	Elapsed int
}

// Options configures a Recorder.
type Options struct {
	ContentType  string
	Filename     string
	TickInterval time.Duration

	OnStateChange func(state State)
	OnTick        func(elapsed int)
	// OnComplete receives every successfully finalized recording exactly once.
	OnComplete func(rec Recording)
}

type capture struct {
	stream   Stream
	data     chan []byte
	stopTick chan struct{}
	stopping bool
}

// Recorder runs a single capture at a time: idle → recording → idle.
type Recorder struct {
	source Source
	opts   Options
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	opening bool
	busy    bool
	elapsed int
	current *capture
}

// New creates a Recorder over source.
func New(source Source, log zerolog.Logger, opts Options) *Recorder {
	if opts.ContentType == "" {
		opts.ContentType = DefaultContentType
	}
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	return &Recorder{
		source: source,
		opts:   opts,
		log:    log.With().Str("component", "recorder").Logger(),
		state:  StateIdle,
	}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns the seconds counted for the active or last capture.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// SetBusy marks whether a submission of a previous recording is outstanding.
// Start is refused while busy.
func (r *Recorder) SetBusy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = busy
}

// Busy reports whether a submission is outstanding.
func (r *Recorder) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Start opens the source and begins capturing. When the source refuses
// access the recorder stays idle and a PERMISSION_DENIED error is returned.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.busy:
		r.mu.Unlock()
		return ErrBusy
	case r.state == StateRecording || r.opening:
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.opening = true
	r.mu.Unlock()

	stream, err := r.source.Open(ctx)

	r.mu.Lock()
	r.opening = false
	if err != nil {
		r.mu.Unlock()
		r.log.Warn().Err(err).Msg("Microphone access failed")
		return apperrors.Wrap(apperrors.ErrPermissionDenied, "microphone access failed", err)
	}

	c := &capture{
		stream:   stream,
		data:     make(chan []byte, 1),
		stopTick: make(chan struct{}),
	}
	r.current = c
	r.elapsed = 0
	r.state = StateRecording
	r.mu.Unlock()

	go collect(stream.Chunks(), c.data)
	go r.tick(c)

	r.log.Debug().Msg("Recording started")
	r.notifyState(StateRecording)
	return nil
}

// Stop finalizes the active capture, releases the stream and invokes
// OnComplete with the recording.
func (r *Recorder) Stop(ctx context.Context) (Recording, error) {
	r.mu.Lock()
	c := r.current
	if c == nil || c.stopping {
		r.mu.Unlock()
		return Recording{}, ErrNotRecording
	}
	c.stopping = true
	close(c.stopTick)
	r.mu.Unlock()

	if err := c.stream.Stop(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to stop capture stream")
	}

	var data []byte
	var waitErr error
	select {
	case data = <-c.data:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	r.mu.Lock()
	r.current = nil
	r.state = StateIdle
	elapsed := r.elapsed
	r.mu.Unlock()
	r.notifyState(StateIdle)

	if waitErr != nil {
		return Recording{}, apperrors.Wrap(apperrors.ErrTimeout, "recording was not finalized", waitErr)
	}
	if len(data) == 0 {
		return Recording{}, ErrEmptyRecording
	}

	rec := Recording{
		Data:        data,
		ContentType: r.opts.ContentType,
		Filename:    r.opts.Filename,
		Elapsed:     elapsed,
	}
	r.log.Debug().Int("bytes", len(data)).Int("elapsed", elapsed).Msg("Recording finished")
	if r.opts.OnComplete != nil {
		r.opts.OnComplete(rec)
	}
	return rec, nil
}

// Close discards an active capture without producing a recording.
func (r *Recorder) Close() {
	r.mu.Lock()
	c := r.current
	if c == nil || c.stopping {
		r.mu.Unlock()
		return
	}
	c.stopping = true
	close(c.stopTick)
	r.current = nil
	r.state = StateIdle
	r.mu.Unlock()

	if err := c.stream.Stop(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to stop capture stream")
	}
	r.notifyState(StateIdle)
}

func (r *Recorder) tick(c *capture) {
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopTick:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.current != c || c.stopping {
				r.mu.Unlock()
				return
			}
			r.elapsed++
			elapsed := r.elapsed
			r.mu.Unlock()

			if r.opts.OnTick != nil {
				r.opts.OnTick(elapsed)
			}
		}
	}
}

func (r *Recorder) notifyState(state State) {
	if r.opts.OnStateChange != nil {
		r.opts.OnStateChange(state)
	}
}

// collect concatenates chunks until the channel is closed.
func collect(chunks <-chan []byte, out chan<- []byte) {
	var buf []byte
	for chunk := range chunks {
		buf = append(buf, chunk...)
	}
	out <- buf
}

// IsPermissionDenied reports whether err came from a refused capture device.
func IsPermissionDenied(err error) bool {
	return apperrors.Is(err, apperrors.ErrPermissionDenied)
}
