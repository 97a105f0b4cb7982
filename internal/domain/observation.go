package domain

import (
	"fmt"
)

// ConfidenceEpsilon is the tolerance applied when clamping classifier
// confidences. Values inside [-epsilon, 1+epsilon] are clamped to [0,1];
// anything further out is rejected as an invalid observation.
const ConfidenceEpsilon = 1e-6

// WeightEpsilon is the tolerance for the source-weight sum invariant.
const WeightEpsilon = 1e-6

// Default source weights for the two classifier sources. The weights across
// all sources used in one fusion must sum to 1.0.
const (
	SourceImage = "image"
	SourceText  = "text"

	DefaultImageWeight = 0.7
	DefaultTextWeight  = 0.3
)

// ClassifierObservation is one candidate disease label with the confidence
// a single classifier assigned to it.
type ClassifierObservation struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	AuxScore   *float64 `json:"aux_score,omitempty"`
}

// ObservationSet holds the normalized output of one classifier source
// together with the weight that source carries during fusion. An empty set
// is valid and contributes zero to every label's score.
type ObservationSet struct {
	Source       string                  `json:"source"`
	Weight       float64                 `json:"weight"`
	Observations []ClassifierObservation `json:"observations"`
}

// Validate checks the structural invariants of an observation set: labels
// are non-empty and unique within the set, the weight is in (0,1], and every
// confidence is within the clamp tolerance of [0,1].
func (s *ObservationSet) Validate() error {
	if s.Weight <= 0 || s.Weight > 1+WeightEpsilon {
		return fmt.Errorf("source %q has weight %v outside (0,1]: %w", s.Source, s.Weight, ErrWeightMismatch)
	}

	seen := make(map[string]struct{}, len(s.Observations))
	for i, obs := range s.Observations {
		if obs.Label == "" {
			return fmt.Errorf("source %q observation %d has empty label: %w", s.Source, i, ErrInvalidObservation)
		}
		if _, dup := seen[obs.Label]; dup {
			return fmt.Errorf("source %q has duplicate label %q: %w", s.Source, obs.Label, ErrInvalidObservation)
		}
		seen[obs.Label] = struct{}{}

		if obs.Confidence < -ConfidenceEpsilon || obs.Confidence > 1+ConfidenceEpsilon {
			return fmt.Errorf("source %q label %q confidence %v outside [0,1]: %w",
				s.Source, obs.Label, obs.Confidence, ErrInvalidObservation)
		}
	}
	return nil
}

// clampConfidence bounds a confidence to [0,1]. Callers must have validated
// that the value is within the clamp tolerance first.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
