package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/logger"
	"github.com/windfall/shadowing/internal/model"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/view"
)

type stubAPI struct{}

func (stubAPI) GetMaterial(ctx context.Context, id int64) (*model.MaterialDetail, error) {
	if id != 1 {
		return nil, errors.New("not found")
	}
	return &model.MaterialDetail{
		Material: model.Material{ID: 1, Title: "Interview", Duration: 30},
		Segments: []model.Segment{
			{ID: 10, Text: "one", StartTime: 0, EndTime: 5},
			{ID: 11, Text: "two", StartTime: 5, EndTime: 9, Order: 1},
		},
	}, nil
}

func (stubAPI) SegmentAudioURL(segmentID int64) string {
	return fmt.Sprintf("http://backend/api/segments/%d/audio", segmentID)
}

func (stubAPI) UploadRecording(ctx context.Context, segmentID int64, filename, contentType string, audio io.Reader) (*model.Practice, error) {
	return &model.Practice{ID: 5, SegmentID: segmentID}, nil
}

func (stubAPI) Evaluate(ctx context.Context, practiceID int64) (*model.EvaluationResult, error) {
	return &model.EvaluationResult{PracticeID: practiceID, Evaluation: model.Evaluation{AccuracyScore: 64}}, nil
}

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	queries, err := cache.New(cache.Options{MaxEntries: 10}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(queries.Close)

	r := NewRegistry(func(opts view.PracticeOptions, source recorder.Source) *view.PracticeView {
		return view.NewPracticeView(view.PracticeDeps{
			API:     stubAPI{},
			Queries: queries,
			Engines: func(d float64) player.EngineFactory { return player.ClockEngineFactory(d, time.Hour) },
			Source:  source,
			Log:     logger.NewNop(),
		}, opts)
	}, ttl, logger.NewNop())
	t.Cleanup(func() { r.CloseAll(context.Background()) })
	return r
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	s, err := r.Create(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "Interview", s.View().Snapshot().Title)

	got, err := r.Get(s.ID.String())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Delete(s.ID.String()))
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, s.View().Player(), "closing the session releases the player")

	_, err = r.Get(s.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(s.ID.String()), ErrNotFound)
	_, err = r.Get("not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_CreateUnknownMaterial(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	_, err := r.Create(context.Background(), 99)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := r.Create(ctx, 1)
	require.NoError(t, err)
	fresh, err := r.Create(ctx, 1)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	_, err = r.Get(fresh.ID.String())
	require.NoError(t, err)

	now = now.Add(20 * time.Second)
	assert.Equal(t, 1, r.Sweep(ctx))
	assert.Equal(t, 1, r.Len())

	_, err = r.Get(stale.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(fresh.ID.String())
	assert.NoError(t, err)
}

func TestSession_PublishesViewEvents(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	s, err := r.Create(ctx, 1)
	require.NoError(t, err)

	var mu sync.Mutex
	var types []string
	unsubscribe := s.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	})
	defer unsubscribe()

	v := s.View()
	require.NoError(t, v.StartRecording(ctx))
	require.NoError(t, s.Source().Push([]byte("chunk")))
	result, err := v.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, view.BucketWarn, result.Bucket)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types, EventRecorderState)
	assert.Contains(t, types, EventEvaluation)
}
