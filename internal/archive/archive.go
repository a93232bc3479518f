package archive

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// archiveTimeout bounds a single background upload.
const archiveTimeout = 60 * time.Second

// ObjectStore is an object storage backend (R2, GCS).
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Name() string
}

// Archiver keeps a copy of every submitted recording in object storage.
// Failures are logged and never reach the practice flow.
type Archiver struct {
	store ObjectStore
	log   zerolog.Logger
	wg    sync.WaitGroup
}

// New creates an Archiver. A nil store yields a no-op archiver.
func New(store ObjectStore, log zerolog.Logger) *Archiver {
	return &Archiver{store: store, log: log}
}

// Enabled reports whether a backend is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

// Key returns the object key for a recording of segmentID.
func Key(segmentID int64, id uuid.UUID, ext string) string {
	return path.Join("recordings", fmt.Sprintf("%d", segmentID), id.String()+ext)
}

// ArchiveAsync uploads the recording in the background.
func (a *Archiver) ArchiveAsync(segmentID int64, data []byte, contentType string) {
	if !a.Enabled() {
		return
	}

	key := Key(segmentID, uuid.New(), extensionFor(contentType))
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		location, err := a.store.Put(ctx, key, data, contentType)
		if err != nil {
			a.log.Error().
				Err(err).
				Str("backend", a.store.Name()).
				Int64("segment_id", segmentID).
				Msg("Failed to archive recording")
			return
		}

		a.log.Info().
			Str("backend", a.store.Name()).
			Int64("segment_id", segmentID).
			Str("location", location).
			Int("bytes", len(data)).
			Msg("Recording archived")
	}()
}

// Wait blocks until pending uploads finish.
func (a *Archiver) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

// extensionFor maps a recording content type, parameters included, to a
// file extension.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	default:
		return ".webm"
	}
}
