// Package classifier provides clients for the upstream eye-disease
// classifier services: a CNN image classifier and an NLP symptom classifier.
// Both return normalized label/confidence observations that feed the fusion
// engine. Decorators add Redis response caching and circuit breaking.
package classifier

import (
	"context"

	"github.com/sympfindx-server/internal/domain"
)

// ImageClassifier analyzes an uploaded eye image.
type ImageClassifier interface {
	// ClassifyImage returns candidate disease labels for the image at
	// imageRef, each with the model's confidence.
	ClassifyImage(ctx context.Context, imageRef string) ([]domain.ClassifierObservation, error)
}

// SymptomClassifier analyzes free-text symptom descriptions.
type SymptomClassifier interface {
	// ClassifySymptoms returns candidate disease labels extracted from the
	// symptom text, each with the model's confidence.
	ClassifySymptoms(ctx context.Context, symptomText string) ([]domain.ClassifierObservation, error)
}

// prediction is the wire format both classifier services use for one
// candidate label.
type prediction struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	AuxScore   *float64 `json:"aux_score,omitempty"`
}

// classifyResponse is the wire format of a classifier service response.
type classifyResponse struct {
	Predictions []prediction `json:"predictions"`
	ModelName   string       `json:"model_name,omitempty"`
	ModelVer    string       `json:"model_version,omitempty"`
}

// toObservations converts wire predictions to domain observations.
func (r *classifyResponse) toObservations() []domain.ClassifierObservation {
	observations := make([]domain.ClassifierObservation, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		observations = append(observations, domain.ClassifierObservation{
			Label:      p.Label,
			Confidence: p.Confidence,
			AuxScore:   p.AuxScore,
		})
	}
	return observations
}
