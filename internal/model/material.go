package model

import (
	"fmt"
	"sort"
)

// SourceType identifies where a material was imported from.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourcePDF     SourceType = "pdf"
	SourceFile    SourceType = "file"
)

// Label returns a short human readable name for the source.
func (s SourceType) Label() string {
	switch s {
	case SourceYouTube:
		return "YouTube"
	case SourcePDF:
		return "PDF"
	default:
		return "File"
	}
}

// Material is an imported piece of spoken content.
type Material struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	SourceType    SourceType `json:"source_type"`
	SourceURL     *string    `json:"source_url"`
	AudioPath     string     `json:"audio_path"`
	Duration      float64    `json:"duration"`
	ThumbnailPath *string    `json:"thumbnail_path"`
	CreatedAt     Timestamp  `json:"created_at"`
}

// MaterialDetail is a material together with its segments.
type MaterialDetail struct {
	Material
	Segments []Segment `json:"segments"`
}

// Segment is a time-bounded slice of a material's audio with its script text.
type Segment struct {
	ID        int64   `json:"id"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	AudioPath *string `json:"audio_path"`
	Order     int     `json:"order"`
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// SortSegments orders segments by their order index, keeping the server order for ties.
func (m *MaterialDetail) SortSegments() {
	sort.SliceStable(m.Segments, func(i, j int) bool {
		return m.Segments[i].Order < m.Segments[j].Order
	})
}

// YouTubeImportResult is returned by the backend after a video import.
type YouTubeImportResult struct {
	MaterialID int64  `json:"material_id"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

// PDFImportResult is returned by the backend after a PDF import.
type PDFImportResult struct {
	MaterialID   int64  `json:"material_id"`
	Title        string `json:"title"`
	SegmentCount int    `json:"segment_count"`
	Message      string `json:"message"`
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
