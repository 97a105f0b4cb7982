package domain

import (
	"fmt"
	"math"
)

// UnknownLabel is the predicted label when fusion receives no observations.
const UnknownLabel = "unknown"

// Risk tier thresholds. Comparisons are strict: a confidence exactly equal
// to a threshold falls into the lower tier.
const (
	criticalThreshold = 0.8
	highThreshold     = 0.6
	mediumThreshold   = 0.4
)

// FusionResult is the ranked diagnosis produced by fusing the classifier
// observation sets. PredictedLabel is always the argmax of PerLabelScore
// under the deterministic tie-break documented on Fuse.
type FusionResult struct {
	PredictedLabel    string             `json:"predicted_label"`
	OverallConfidence float64            `json:"overall_confidence"`
	RiskTier          RiskTier           `json:"risk_tier"`
	PerLabelScore     map[string]float64 `json:"per_label_score"`
}

// Fuse combines the observation sets into a single ranked result.
//
// Each observation contributes confidence * sourceWeight to its label's
// accumulated score; a label missing from a source simply receives no
// contribution from it. The predicted label is the one with the strictly
// greatest accumulated score. Ties resolve in favor of the label backed by
// the source with the higher weight (the image classifier under the default
// weights), then the lexicographically smaller label, so identical inputs
// always produce identical results.
//
// Fuse is a pure function: it fails with ErrInvalidObservation for
// confidences outside [0,1] beyond the clamp tolerance, and with
// ErrWeightMismatch when the source weights do not sum to 1.0 ± epsilon.
func Fuse(sets []ObservationSet) (*FusionResult, error) {
	var weightSum float64
	for i := range sets {
		if err := sets[i].Validate(); err != nil {
			return nil, err
		}
		weightSum += sets[i].Weight
	}
	if math.Abs(weightSum-1.0) > WeightEpsilon {
		return nil, fmt.Errorf("source weights sum to %v: %w", weightSum, ErrWeightMismatch)
	}

	scores := make(map[string]float64)
	// Highest source weight backing each label, for tie-breaking.
	backing := make(map[string]float64)
	for _, set := range sets {
		for _, obs := range set.Observations {
			scores[obs.Label] += clampConfidence(obs.Confidence) * set.Weight
			if set.Weight > backing[obs.Label] {
				backing[obs.Label] = set.Weight
			}
		}
	}

	if len(scores) == 0 {
		return &FusionResult{
			PredictedLabel:    UnknownLabel,
			OverallConfidence: 0,
			RiskTier:          RiskLow,
			PerLabelScore:     scores,
		}, nil
	}

	var winner string
	for label := range scores {
		if winner == "" || beats(label, winner, scores, backing) {
			winner = label
		}
	}

	overall := clampConfidence(scores[winner])
	return &FusionResult{
		PredictedLabel:    winner,
		OverallConfidence: overall,
		RiskTier:          RiskTierFor(overall),
		PerLabelScore:     scores,
	}, nil
}

// beats reports whether label a outranks label b: greater score first, then
// higher backing source weight, then lexicographically smaller label.
func beats(a, b string, scores, backing map[string]float64) bool {
	if scores[a] != scores[b] {
		return scores[a] > scores[b]
	}
	if backing[a] != backing[b] {
		return backing[a] > backing[b]
	}
	return a < b
}

// RiskTierFor buckets an overall confidence into a risk tier. Thresholds
// are exclusive lower bounds: 0.8 exactly is high, not critical.
func RiskTierFor(confidence float64) RiskTier {
	switch {
	case confidence > criticalThreshold:
		return RiskCritical
	case confidence > highThreshold:
		return RiskHigh
	case confidence > mediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
