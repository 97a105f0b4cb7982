package domain

import (
	"time"
)

// DefaultSpecialistType is the fallback specialist for any disease label
// without an explicit directory entry.
const DefaultSpecialistType = "general-ophthalmologist"

// Routing rule thresholds.
const (
	specialistThreshold = 0.7
	routineThreshold    = 0.5
)

// RoutingDecision records whether and how urgently a case should reach a
// human specialist. RoutedTo/RoutedAt stay empty until a specialist submits
// a review.
type RoutingDecision struct {
	Recommended    bool       `json:"recommended"`
	Urgency        Urgency    `json:"urgency"`
	SpecialistType string     `json:"specialist_type"`
	RoutedTo       string     `json:"routed_to,omitempty"`
	RoutedAt       *time.Time `json:"routed_at,omitempty"`
}

// RoutingPolicy maps a fusion result to a routing decision using an
// immutable label-to-specialist directory injected at construction.
type RoutingPolicy struct {
	specialists map[string]string
}

// NewRoutingPolicy creates a routing policy over a copy of the given
// directory. A nil directory yields a policy that always falls back to
// DefaultSpecialistType.
func NewRoutingPolicy(directory map[string]string) *RoutingPolicy {
	specialists := make(map[string]string, len(directory))
	for label, specialist := range directory {
		specialists[label] = specialist
	}
	return &RoutingPolicy{specialists: specialists}
}

// DefaultSpecialistDirectory returns the built-in disease-to-specialist
// mapping. Common surface conditions deliberately have no entry and route
// to the general ophthalmologist.
func DefaultSpecialistDirectory() map[string]string {
	return map[string]string{
		"glaucoma":             "glaucoma-specialist",
		"cataract":             "cataract-surgeon",
		"diabetic_retinopathy": "retina-specialist",
		"macular_degeneration": "retina-specialist",
		"keratitis":            "cornea-specialist",
		"dry_eye":              "cornea-specialist",
		"uveitis":              "uveitis-specialist",
		"ptosis":               "oculoplastic-surgeon",
		"chalazion":            "oculoplastic-surgeon",
	}
}

// Route derives the routing decision for a fusion result. Rules apply in
// order, first match wins:
//
//  1. confidence > 0.7 and tier high/critical: recommended, emergency for
//     critical and urgent for high, specialist looked up by label.
//  2. confidence > 0.5: recommended, routine, specialist looked up by label.
//  3. otherwise: not recommended, routine, general ophthalmologist.
//
// Route is total and pure: every fusion result produces a decision.
func (p *RoutingPolicy) Route(fusion *FusionResult) RoutingDecision {
	confidence := fusion.OverallConfidence
	tier := fusion.RiskTier

	if confidence > specialistThreshold && (tier == RiskHigh || tier == RiskCritical) {
		urgency := UrgencyUrgent
		if tier == RiskCritical {
			urgency = UrgencyEmergency
		}
		return RoutingDecision{
			Recommended:    true,
			Urgency:        urgency,
			SpecialistType: p.Lookup(fusion.PredictedLabel),
		}
	}

	if confidence > routineThreshold {
		return RoutingDecision{
			Recommended:    true,
			Urgency:        UrgencyRoutine,
			SpecialistType: p.Lookup(fusion.PredictedLabel),
		}
	}

	return RoutingDecision{
		Recommended:    false,
		Urgency:        UrgencyRoutine,
		SpecialistType: DefaultSpecialistType,
	}
}

// Lookup resolves a disease label to a specialist type, falling back to
// DefaultSpecialistType for unmapped labels. Never fails.
func (p *RoutingPolicy) Lookup(label string) string {
	if specialist, ok := p.specialists[label]; ok {
		return specialist
	}
	return DefaultSpecialistType
}
