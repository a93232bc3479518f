package cache

import "strconv"

// Query keys. Keys sharing a prefix can be invalidated together.
const (
	KeyMaterials       = "materials"
	prefixMaterial     = "material:"
	prefixPractice     = "practice:"
	prefixSegmentTries = "practices:segment:"
)

// MaterialKey is the key of one material detail.
func MaterialKey(id int64) string {
	return prefixMaterial + strconv.FormatInt(id, 10)
}

// PracticeKey is the key of one practice record.
func PracticeKey(id int64) string {
	return prefixPractice + strconv.FormatInt(id, 10)
}

// SegmentPracticesKey is the key of the practice history of a segment.
func SegmentPracticesKey(segmentID int64) string {
	return prefixSegmentTries + strconv.FormatInt(segmentID, 10)
}
