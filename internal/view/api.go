package view

import (
	"context"
	"io"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/model"
)

// LibraryAPI is the part of the backend the library list uses.
type LibraryAPI interface {
	ListMaterials(ctx context.Context) ([]model.Material, error)
	DeleteMaterial(ctx context.Context, id int64) error
}

// ImportAPI is the part of the backend the import forms use.
type ImportAPI interface {
	ImportYouTube(ctx context.Context, videoURL string) (*model.YouTubeImportResult, error)
	ImportPDF(ctx context.Context, filename string, document io.Reader) (*model.PDFImportResult, error)
}

// HistoryAPI reads recorded practices.
type HistoryAPI interface {
	ListPractices(ctx context.Context, segmentID int64) ([]model.Practice, error)
	GetPractice(ctx context.Context, id int64) (*model.Practice, error)
}

// PracticeAPI is the part of the backend the practice view uses.
type PracticeAPI interface {
	GetMaterial(ctx context.Context, id int64) (*model.MaterialDetail, error)
	SegmentAudioURL(segmentID int64) string
	UploadRecording(ctx context.Context, segmentID int64, filename, contentType string, audio io.Reader) (*model.Practice, error)
	Evaluate(ctx context.Context, practiceID int64) (*model.EvaluationResult, error)
}

// Materials returns the cached library listing.
func Materials(ctx context.Context, c *cache.QueryCache, api LibraryAPI) ([]model.Material, error) {
	return cache.Query(ctx, c, cache.KeyMaterials, api.ListMaterials)
}

// Material returns a cached material with its segments.
func Material(ctx context.Context, c *cache.QueryCache, api PracticeAPI, id int64) (*model.MaterialDetail, error) {
	return cache.Query(ctx, c, cache.MaterialKey(id), func(ctx context.Context) (*model.MaterialDetail, error) {
		return api.GetMaterial(ctx, id)
	})
}

// SegmentPractices returns the cached practice history of a segment.
func SegmentPractices(ctx context.Context, c *cache.QueryCache, api HistoryAPI, segmentID int64) ([]model.Practice, error) {
	return cache.Query(ctx, c, cache.SegmentPracticesKey(segmentID), func(ctx context.Context) ([]model.Practice, error) {
		return api.ListPractices(ctx, segmentID)
	})
}

// Practice returns a cached practice.
func Practice(ctx context.Context, c *cache.QueryCache, api HistoryAPI, id int64) (*model.Practice, error) {
	return cache.Query(ctx, c, cache.PracticeKey(id), func(ctx context.Context) (*model.Practice, error) {
		return api.GetPractice(ctx, id)
	})
}
