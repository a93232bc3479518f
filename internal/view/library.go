package view

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/model"
)

const (
	emptyLibraryMessage = "No materials yet."
	emptyLibraryHint    = "Import a YouTube video or PDF to get started."
)

// MaterialItem is one card of the library listing.
type MaterialItem struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	SourceType  model.SourceType `json:"source_type"`
	SourceLabel string           `json:"source_label"`
	Duration    string           `json:"duration"`
}

// LibraryView is the rendered library.
type LibraryView struct {
	Materials    []MaterialItem `json:"materials"`
	Empty        bool           `json:"empty"`
	EmptyMessage string         `json:"empty_message,omitempty"`
	EmptyHint    string         `json:"empty_hint,omitempty"`
	Delete       MutationState  `json:"delete"`
}

// MaterialList lists imported materials and deletes them.
type MaterialList struct {
	api     LibraryAPI
	queries *cache.QueryCache
	log     zerolog.Logger
	del     mutation
}

// NewMaterialList creates a MaterialList.
func NewMaterialList(api LibraryAPI, queries *cache.QueryCache, log zerolog.Logger) *MaterialList {
	return &MaterialList{
		api:     api,
		queries: queries,
		log:     log.With().Str("view", "library").Logger(),
	}
}

// Load returns the library from the cache, fetching it when missing.
func (l *MaterialList) Load(ctx context.Context) (LibraryView, error) {
	materials, err := Materials(ctx, l.queries, l.api)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to load materials")
		return LibraryView{Delete: l.del.snapshot()}, err
	}

	view := LibraryView{
		Materials: make([]MaterialItem, 0, len(materials)),
		Delete:    l.del.snapshot(),
	}
	for _, m := range materials {
		view.Materials = append(view.Materials, MaterialItem{
			ID:          m.ID,
			Title:       m.Title,
			SourceType:  m.SourceType,
			SourceLabel: m.SourceType.Label(),
			Duration:    model.FormatClock(m.Duration),
		})
	}
	if len(view.Materials) == 0 {
		view.Empty = true
		view.EmptyMessage = emptyLibraryMessage
		view.EmptyHint = emptyLibraryHint
	}
	return view, nil
}

// Delete removes a material and invalidates the listing. Only one delete
// runs at a time.
func (l *MaterialList) Delete(ctx context.Context, id int64) error {
	if err := l.del.begin(); err != nil {
		return err
	}

	if err := l.api.DeleteMaterial(ctx, id); err != nil {
		l.log.Error().Err(err).Int64("material_id", id).Msg("Failed to delete material")
		l.del.fail("Failed to delete material. Please try again.")
		return err
	}

	l.queries.Invalidate(cache.KeyMaterials)
	l.queries.Invalidate(cache.MaterialKey(id))
	l.del.succeed("Material deleted.")

	l.log.Info().Int64("material_id", id).Msg("Material deleted")
	return nil
}
