package model

// Practice is one recording attempt against one segment.
type Practice struct {
	ID              int64       `json:"id"`
	SegmentID       int64       `json:"segment_id"`
	RecordingPath   string      `json:"recording_path"`
	TranscribedText *string     `json:"transcribed_text"`
	Evaluation      *Evaluation `json:"evaluation"`
	CreatedAt       Timestamp   `json:"created_at"`
}

// Evaluated reports whether the server has attached an evaluation.
func (p Practice) Evaluated() bool {
	return p.Evaluation != nil
}

// Evaluation is the server-produced feedback for a practice.
type Evaluation struct {
	AccuracyScore      float64  `json:"accuracy_score"`
	MissingWords       []string `json:"missing_words"`
	AddedWords         []string `json:"added_words"`
	PronunciationNotes string   `json:"pronunciation_notes"`
	OverallFeedback    string   `json:"overall_feedback"`
	Strengths          []string `json:"strengths"`
	AreasToImprove     []string `json:"areas_to_improve"`
}

// EvaluationResult is the response of an evaluation request.
type EvaluationResult struct {
	PracticeID      int64      `json:"practice_id"`
	TranscribedText string     `json:"transcribed_text"`
	OriginalText    string     `json:"original_text"`
	Evaluation      Evaluation `json:"evaluation"`
}
