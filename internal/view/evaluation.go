package view

import (
	"github.com/windfall/shadowing/internal/model"
)

// EvaluationView is an evaluation result ready for display.
type EvaluationView struct {
	PracticeID      int64            `json:"practice_id"`
	Score           float64          `json:"score"`
	Bucket          Bucket           `json:"bucket"`
	OriginalText    string           `json:"original_text"`
	TranscribedText string           `json:"transcribed_text"`
	Evaluation      model.Evaluation `json:"evaluation"`
}

// NewEvaluationView builds the display form of result.
func NewEvaluationView(result model.EvaluationResult) EvaluationView {
	score := clampScore(result.Evaluation.AccuracyScore)
	return EvaluationView{
		PracticeID:      result.PracticeID,
		Score:           score,
		Bucket:          ScoreBucket(score),
		OriginalText:    result.OriginalText,
		TranscribedText: result.TranscribedText,
		Evaluation:      result.Evaluation,
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
