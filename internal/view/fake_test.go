package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/logger"
	"github.com/windfall/shadowing/internal/model"
)

// fakeAPI is an in-memory backend.
type fakeAPI struct {
	mu        sync.Mutex
	materials map[int64]*model.MaterialDetail
	calls     []string
	nextID    int64

	listErr     error
	deleteErr   error
	importErr   error
	uploadErr   error
	evaluateErr error
	score       float64
	// uploadGate, when set, blocks uploads until it is closed.
	uploadGate chan struct{}
	uploaded   [][]byte
}

func newFakeAPI(materials ...*model.MaterialDetail) *fakeAPI {
	f := &fakeAPI{materials: make(map[int64]*model.MaterialDetail), nextID: 100, score: 85}
	for _, m := range materials {
		f.materials[m.ID] = m
	}
	return f
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ListMaterials(ctx context.Context) ([]model.Material, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Material{}
	for id := int64(1); id <= 1000; id++ {
		if m, ok := f.materials[id]; ok {
			out = append(out, m.Material)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetMaterial(ctx context.Context, id int64) (*model.MaterialDetail, error) {
	f.record(fmt.Sprintf("get:%d", id))
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.materials[id]
	if !ok {
		return nil, errors.New("material not found")
	}
	return m, nil
}

func (f *fakeAPI) DeleteMaterial(ctx context.Context, id int64) error {
	f.record(fmt.Sprintf("delete:%d", id))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.materials, id)
	return nil
}

func (f *fakeAPI) ImportYouTube(ctx context.Context, videoURL string) (*model.YouTubeImportResult, error) {
	f.record("youtube:" + videoURL)
	if f.importErr != nil {
		return nil, f.importErr
	}
	return &model.YouTubeImportResult{MaterialID: 9, Title: "Talk", Message: "ok"}, nil
}

func (f *fakeAPI) ImportPDF(ctx context.Context, filename string, document io.Reader) (*model.PDFImportResult, error) {
	f.record("pdf:" + filename)
	if f.importErr != nil {
		return nil, f.importErr
	}
	return &model.PDFImportResult{MaterialID: 10, Title: "Doc", SegmentCount: 4}, nil
}

func (f *fakeAPI) SegmentAudioURL(segmentID int64) string {
	return fmt.Sprintf("http://backend/api/segments/%d/audio", segmentID)
}

func (f *fakeAPI) UploadRecording(ctx context.Context, segmentID int64, filename, contentType string, audio io.Reader) (*model.Practice, error) {
	f.record(fmt.Sprintf("upload:%d", segmentID))
	if f.uploadGate != nil {
		select {
		case <-f.uploadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, data)
	f.nextID++
	return &model.Practice{ID: f.nextID, SegmentID: segmentID, RecordingPath: filename}, nil
}

func (f *fakeAPI) Evaluate(ctx context.Context, practiceID int64) (*model.EvaluationResult, error) {
	f.record(fmt.Sprintf("evaluate:%d", practiceID))
	if f.evaluateErr != nil {
		return nil, f.evaluateErr
	}
	return &model.EvaluationResult{
		PracticeID:      practiceID,
		TranscribedText: "hello word",
		OriginalText:    "hello world",
		Evaluation: model.Evaluation{
			AccuracyScore:   f.score,
			MissingWords:    []string{"world"},
			AddedWords:      []string{"word"},
			OverallFeedback: "Nice pacing.",
			Strengths:       []string{"rhythm"},
		},
	}, nil
}

func (f *fakeAPI) ListPractices(ctx context.Context, segmentID int64) ([]model.Practice, error) {
	f.record(fmt.Sprintf("practices:%d", segmentID))
	return []model.Practice{{ID: 1, SegmentID: segmentID}}, nil
}

func (f *fakeAPI) GetPractice(ctx context.Context, id int64) (*model.Practice, error) {
	f.record(fmt.Sprintf("practice:%d", id))
	return &model.Practice{ID: id}, nil
}

func newTestQueries(t *testing.T) *cache.QueryCache {
	t.Helper()
	c, err := cache.New(cache.Options{MaxEntries: 100}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func material(id int64, title string, segments int) *model.MaterialDetail {
	m := &model.MaterialDetail{
		Material: model.Material{ID: id, Title: title, SourceType: model.SourceYouTube, Duration: 125},
	}
	for i := 0; i < segments; i++ {
		start := float64(i * 10)
		m.Segments = append(m.Segments, model.Segment{
			ID:        id*100 + int64(i),
			Text:      fmt.Sprintf("sentence %d", i+1),
			StartTime: start,
			EndTime:   start + 8,
			Order:     i,
		})
	}
	return m
}
