package view

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

var templates = template.Must(template.New("view").Funcs(template.FuncMap{
	"score":  func(s float64) string { return fmt.Sprintf("%g%%", s) },
	"join":   strings.Join,
	"bar":    scoreBar,
	"speeds": formatSpeeds,
}).Parse(`
{{- define "evaluation" -}}
Accuracy Score: {{ score .Score }} [{{ .Bucket }}]
{{ bar .Score }}

Original Text:      {{ .OriginalText }}
Your Transcription: {{ .TranscribedText }}

Feedback
  {{ .Evaluation.OverallFeedback }}
{{- with .Evaluation.Strengths }}

Strengths
{{- range . }}
  - {{ . }}
{{- end }}
{{- end }}
{{- with .Evaluation.AreasToImprove }}

Areas to Improve
{{- range . }}
  - {{ . }}
{{- end }}
{{- end }}
{{- with .Evaluation.MissingWords }}

Missing Words: {{ join . ", " }}
{{- end }}
{{- with .Evaluation.AddedWords }}

Extra Words: {{ join . ", " }}
{{- end }}
{{- with .Evaluation.PronunciationNotes }}

Pronunciation Notes
  {{ . }}
{{- end }}
{{ end -}}

{{- define "library" -}}
Material Library
{{- if .Empty }}
  {{ .EmptyMessage }}
  {{ .EmptyHint }}
{{- else }}
{{- range .Materials }}
  #{{ .ID }}  [{{ .SourceLabel }}] {{ .Title }} ({{ .Duration }})
{{- end }}
{{- end }}
{{ end -}}

{{- define "practice" -}}
{{ .Title }}
{{- if .Segment }}
{{ .Position }}{{ if .HasPrev }}  [prev]{{ end }}{{ if .HasNext }}  [next]{{ end }}

Script
  {{ .Segment.Text }}

Speed: {{ speeds .SpeedOptions .Speed }}
Recorder: {{ .Recorder }} {{ .Elapsed }}
{{- else }}
  This material has no segments.
{{- end }}
{{- with .Submission.Error }}
  {{ . }}
{{- end }}
{{ end -}}
`))

// RenderEvaluation writes an evaluation result as text.
func RenderEvaluation(w io.Writer, v EvaluationView) error {
	return templates.ExecuteTemplate(w, "evaluation", v)
}

// RenderLibrary writes the library listing as text.
func RenderLibrary(w io.Writer, v LibraryView) error {
	return templates.ExecuteTemplate(w, "library", v)
}

// RenderPractice writes the practice screen as text.
func RenderPractice(w io.Writer, s PracticeSnapshot) error {
	return templates.ExecuteTemplate(w, "practice", s)
}

func scoreBar(score float64) string {
	const width = 20
	filled := int(clampScore(score) / 100 * width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func formatSpeeds(options []float64, current float64) string {
	parts := make([]string, 0, len(options))
	for _, o := range options {
		label := fmt.Sprintf("%gx", o)
		if o == current {
			label = "(" + label + ")"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}
