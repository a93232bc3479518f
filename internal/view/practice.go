package view

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/archive"
	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/model"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/store"
)

// EngineSource returns the playback engine factory for a track of the given
// length in seconds.
type EngineSource func(trackDuration float64) player.EngineFactory

// PracticeDeps are the collaborators of a PracticeView.
type PracticeDeps struct {
	API     PracticeAPI
	Queries *cache.QueryCache
	Store   *store.Store
	Engines EngineSource
	Source  recorder.Source
	// Archive is optional.
	Archive *archive.Archiver
	Log     zerolog.Logger
}

// PracticeOptions carries listeners for pushed updates. Listeners must not
// call back into the PracticeView.
type PracticeOptions struct {
	OnPlayerState  func(state player.State)
	OnPlayerTime   func(current float64)
	OnRecorderTick func(elapsed int)
	OnRecorder     func(state recorder.State)
	OnEvaluation   func(result EvaluationView)
}

// PracticeSnapshot is the rendered practice screen.
type PracticeSnapshot struct {
	MaterialID   int64            `json:"material_id"`
	Title        string           `json:"title"`
	Index        int              `json:"index"`
	Total        int              `json:"total"`
	Position     string           `json:"position"`
	Segment      *model.Segment   `json:"segment,omitempty"`
	AudioURL     string           `json:"audio_url,omitempty"`
	HasPrev      bool             `json:"has_prev"`
	HasNext      bool             `json:"has_next"`
	Speed        float64          `json:"speed"`
	SpeedOptions []float64        `json:"speed_options"`
	Player       *player.Snapshot `json:"player,omitempty"`
	Recorder     recorder.State   `json:"recorder"`
	Elapsed      string           `json:"elapsed"`
	CanRecord    bool             `json:"can_record"`
	Submission   MutationState    `json:"submission"`
	Evaluation   *EvaluationView  `json:"evaluation,omitempty"`
}

// PracticeView walks the segments of one material: it plays the current
// segment, records the user and shows the evaluation of the latest attempt.
type PracticeView struct {
	api     PracticeAPI
	queries *cache.QueryCache
	store   *store.Store
	engines EngineSource
	archive *archive.Archiver
	rec     *recorder.Recorder
	opts    PracticeOptions
	log     zerolog.Logger
	submit  mutation

	mu         sync.Mutex
	material   *model.MaterialDetail
	index      int
	selection  uint64
	player     *player.Player
	evaluation *EvaluationView
	closed     bool
}

// NewPracticeView creates a PracticeView. Open must be called before use.
func NewPracticeView(deps PracticeDeps, opts PracticeOptions) *PracticeView {
	v := &PracticeView{
		api:     deps.API,
		queries: deps.Queries,
		store:   deps.Store,
		engines: deps.Engines,
		archive: deps.Archive,
		opts:    opts,
		log:     deps.Log.With().Str("view", "practice").Logger(),
	}
	if v.store == nil {
		v.store = store.New(store.Initial())
	}

	v.rec = recorder.New(deps.Source, deps.Log, recorder.Options{
		OnStateChange: func(state recorder.State) {
			v.store.Dispatch(store.SetRecording{Recording: state == recorder.StateRecording})
			if opts.OnRecorder != nil {
				opts.OnRecorder(state)
			}
		},
		OnTick: opts.OnRecorderTick,
	})
	return v
}

// Open loads the material and selects its first segment.
func (v *PracticeView) Open(ctx context.Context, materialID int64) error {
	material, err := Material(ctx, v.queries, v.api, materialID)
	if err != nil {
		v.log.Error().Err(err).Int64("material_id", materialID).Msg("Failed to load material")
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("practice view is closed")
	}

	v.material = material
	v.store.Dispatch(
		store.SetMaterial{Material: material},
		store.SetViewMode{Mode: store.ViewPractice},
	)

	v.index = -1
	if len(material.Segments) == 0 {
		return nil
	}
	return v.selectLocked(0)
}

// Store returns the UI state shared by this view.
func (v *PracticeView) Store() *store.Store {
	return v.store
}

// Player returns the player of the current segment, or nil.
func (v *PracticeView) Player() *player.Player {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.player
}

// WaitPlayerReady polls until the player of the current segment can play
// and returns it. A player replaced by navigation meanwhile is never
// returned, even if it became ready first.
func (v *PracticeView) WaitPlayerReady(ctx context.Context, interval time.Duration) (*player.Player, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p := v.Player()
		if p == nil {
			return nil, ErrNoPlayer
		}
		switch p.State() {
		case player.StateReady, player.StatePlaying, player.StatePaused:
			return p, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Recorder returns the recorder of this view.
func (v *PracticeView) Recorder() *recorder.Recorder {
	return v.rec
}

// HasNext reports whether a following segment exists.
func (v *PracticeView) HasNext() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasNextLocked()
}

// HasPrev reports whether a preceding segment exists.
func (v *PracticeView) HasPrev() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.index > 0
}

// Next selects the following segment.
func (v *PracticeView) Next() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hasNextLocked() {
		return ErrNoSegment
	}
	return v.selectLocked(v.index + 1)
}

// Prev selects the preceding segment.
func (v *PracticeView) Prev() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.index <= 0 {
		return ErrNoSegment
	}
	return v.selectLocked(v.index - 1)
}

// Jump selects segment index. Jumping to the current segment changes nothing.
func (v *PracticeView) Jump(index int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.material == nil || index < 0 || index >= len(v.material.Segments) {
		return ErrNoSegment
	}
	if index == v.index {
		return nil
	}
	return v.selectLocked(index)
}

// SetSpeed changes the playback speed of this and later segments.
func (v *PracticeView) SetSpeed(speed float64) error {
	if !store.ValidSpeed(speed) {
		return ErrInvalidSpeed
	}

	v.mu.Lock()
	p := v.player
	v.mu.Unlock()

	if p != nil {
		if err := p.SetPlaybackRate(speed); err != nil {
			return err
		}
	}
	v.store.Dispatch(store.SetPlaybackSpeed{Speed: speed})
	return nil
}

// StartRecording starts capturing the user.
func (v *PracticeView) StartRecording(ctx context.Context) error {
	v.mu.Lock()
	ok := v.material != nil && v.index >= 0
	v.mu.Unlock()
	if !ok {
		return ErrNoSegment
	}
	return v.rec.Start(ctx)
}

// StopRecording finalizes the capture and submits it.
func (v *PracticeView) StopRecording(ctx context.Context) (*EvaluationView, error) {
	rec, err := v.rec.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return v.Submit(ctx, rec)
}

// Submit uploads rec for the current segment and then requests its
// evaluation with the id the upload returned.
func (v *PracticeView) Submit(ctx context.Context, rec recorder.Recording) (*EvaluationView, error) {
	v.mu.Lock()
	seg, ok := v.currentLocked()
	selection := v.selection
	v.mu.Unlock()
	if !ok {
		return nil, ErrNoSegment
	}

	if err := v.submit.begin(); err != nil {
		return nil, err
	}
	v.rec.SetBusy(true)
	defer v.rec.SetBusy(false)

	log := v.log.With().Int64("segment_id", seg.ID).Logger()

	practice, err := v.api.UploadRecording(ctx, seg.ID, rec.Filename, rec.ContentType, bytes.NewReader(rec.Data))
	if err != nil {
		log.Error().Err(err).Msg("Failed to upload recording")
		v.submit.fail("Failed to upload recording. Please try again.")
		return nil, err
	}

	// The uploaded attempt supersedes the result on screen.
	v.mu.Lock()
	if v.selection == selection {
		v.evaluation = nil
	}
	v.mu.Unlock()
	v.archive.ArchiveAsync(seg.ID, rec.Data, rec.ContentType)
	v.queries.Invalidate(cache.SegmentPracticesKey(seg.ID))

	result, err := v.api.Evaluate(ctx, practice.ID)
	if err != nil {
		log.Error().Err(err).Int64("practice_id", practice.ID).Msg("Failed to evaluate practice")
		v.submit.fail("Failed to evaluate recording. Please try again.")
		return nil, err
	}
	v.queries.Invalidate(cache.PracticeKey(practice.ID))
	v.queries.Invalidate(cache.SegmentPracticesKey(seg.ID))
	v.submit.succeed("")

	view := NewEvaluationView(*result)
	log.Info().
		Int64("practice_id", practice.ID).
		Float64("score", result.Evaluation.AccuracyScore).
		Msg("Practice evaluated")

	v.mu.Lock()
	current := v.selection == selection && !v.closed
	if current {
		v.evaluation = &view
	}
	v.mu.Unlock()

	// A result for a segment the user already left is not shown.
	if current {
		transcribed := result.TranscribedText
		attempt := *practice
		attempt.TranscribedText = &transcribed
		attempt.Evaluation = &result.Evaluation
		v.store.Dispatch(
			store.SetPractice{Practice: &attempt},
			store.SetViewMode{Mode: store.ViewEvaluation},
		)
		if v.opts.OnEvaluation != nil {
			v.opts.OnEvaluation(view)
		}
	}
	return &view, nil
}

// Snapshot renders the current screen.
func (v *PracticeView) Snapshot() PracticeSnapshot {
	state := v.store.State()

	v.mu.Lock()
	defer v.mu.Unlock()

	snap := PracticeSnapshot{
		Index:        v.index,
		Speed:        state.PlaybackSpeed,
		SpeedOptions: store.SpeedOptions,
		Recorder:     v.rec.State(),
		Elapsed:      model.FormatClock(float64(v.rec.Elapsed())),
		Submission:   v.submit.snapshot(),
		Evaluation:   v.evaluation,
		HasPrev:      v.index > 0,
		HasNext:      v.hasNextLocked(),
	}
	snap.CanRecord = !snap.Submission.Pending && snap.Recorder == recorder.StateIdle

	if v.material == nil {
		return snap
	}
	snap.MaterialID = v.material.ID
	snap.Title = v.material.Title
	snap.Total = len(v.material.Segments)

	if seg, ok := v.currentLocked(); ok {
		snap.Segment = &seg
		snap.AudioURL = v.api.SegmentAudioURL(seg.ID)
		snap.Position = fmt.Sprintf("Segment %d of %d", v.index+1, snap.Total)
	}
	if v.player != nil {
		ps := v.player.Snapshot()
		snap.Player = &ps
	}
	return snap
}

// Close releases the player and discards any active capture.
func (v *PracticeView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	p := v.player
	v.player = nil
	v.mu.Unlock()

	if p != nil {
		p.Close()
	}
	v.rec.Close()
}

func (v *PracticeView) hasNextLocked() bool {
	return v.material != nil && v.index >= 0 && v.index < len(v.material.Segments)-1
}

func (v *PracticeView) currentLocked() (model.Segment, bool) {
	if v.material == nil || v.index < 0 || v.index >= len(v.material.Segments) {
		return model.Segment{}, false
	}
	return v.material.Segments[v.index], true
}

// selectLocked makes index current: the previous player is released, the
// shown evaluation is cleared and a player scoped to the segment is loaded.
func (v *PracticeView) selectLocked(index int) error {
	if v.player != nil {
		v.player.Close()
		v.player = nil
	}

	v.index = index
	v.selection++
	v.evaluation = nil
	v.submit.reset()

	seg := v.material.Segments[index]
	v.store.Dispatch(
		store.SetSegment{Segment: &seg},
		store.SetPlaying{Playing: false},
		store.SetViewMode{Mode: store.ViewPractice},
	)

	if v.engines == nil {
		return nil
	}

	start, end := seg.StartTime, seg.EndTime
	track := math.Max(v.material.Duration, seg.EndTime)
	p, err := player.New(v.engines(track), player.Options{
		StartTime:    &start,
		EndTime:      &end,
		PlaybackRate: v.store.State().PlaybackSpeed,
		OnPlayStateChange: func(playing bool) {
			v.store.Dispatch(store.SetPlaying{Playing: playing})
		},
		OnStateChange: v.opts.OnPlayerState,
		OnTimeUpdate:  v.opts.OnPlayerTime,
		OnError: func(err error) {
			v.log.Warn().Err(err).Int64("segment_id", seg.ID).Msg("Segment audio failed to load")
		},
	})
	if err != nil {
		v.log.Warn().Err(err).Int64("segment_id", seg.ID).Msg("Segment has no playable range")
		return nil
	}
	if err := p.Load(v.api.SegmentAudioURL(seg.ID)); err != nil {
		v.log.Warn().Err(err).Int64("segment_id", seg.ID).Msg("Failed to load segment audio")
	}
	v.player = p
	return nil
}
