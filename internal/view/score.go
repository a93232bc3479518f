package view

// Bucket is the severity band of an accuracy score.
type Bucket string

const (
	BucketGood Bucket = "good"
	BucketWarn Bucket = "warn"
	BucketBad  Bucket = "bad"
)

// ScoreBucket bands a 0-100 accuracy score: good from 80, warn from 60.
func ScoreBucket(score float64) Bucket {
	switch {
	case score >= 80:
		return BucketGood
	case score >= 60:
		return BucketWarn
	default:
		return BucketBad
	}
}
