// Package domain contains the core business entities for the SympFindX
// triage engine: classifier observations, fusion results, routing decisions
// and the case review lifecycle.
//
// Fusion and routing are pure functions; persistence and authorization wrap
// them at the service layer.
package domain

import (
	"errors"
)

// RiskTier is the coarse severity bucket derived from the fused confidence.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// Urgency describes how quickly a case should reach a specialist.
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// CaseStatus tracks a case through the specialist review lifecycle.
// COMPLETED is terminal for this engine; no operation transitions into it.
type CaseStatus string

const (
	StatusPending   CaseStatus = "pending"
	StatusInReview  CaseStatus = "in_review"
	StatusReviewed  CaseStatus = "reviewed"
	StatusCompleted CaseStatus = "completed"
)

// Role is the caller's role as supplied by the upstream authorization layer.
type Role string

const (
	RolePatient    Role = "patient"
	RoleSpecialist Role = "specialist"
	RoleAdmin      Role = "admin"
)

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Sentinel errors for the engine's failure taxonomy. Services wrap these
// with context; the API layer maps them to transport status codes.
var (
	ErrInvalidObservation  = errors.New("invalid classifier observation")
	ErrWeightMismatch      = errors.New("source weights do not sum to 1.0")
	ErrCaseNotFound        = errors.New("case not found")
	ErrAlreadyReviewed     = errors.New("case already reviewed")
	ErrForbidden           = errors.New("forbidden")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)

// IsValid reports whether the risk tier is one of the defined buckets.
func (r RiskTier) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk tier.
func (r RiskTier) String() string {
	return string(r)
}

// IsValid reports whether the urgency is one of the defined levels.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
		return true
	default:
		return false
	}
}

// String returns the string representation of the urgency.
func (u Urgency) String() string {
	return string(u)
}

// IsValid reports whether the status is one of the lifecycle states.
func (s CaseStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusReviewed, StatusCompleted:
		return true
	default:
		return false
	}
}

// String returns the string representation of the case status.
func (s CaseStatus) String() string {
	return string(s)
}

// Reviewable reports whether a case in this status may still accept a
// review submission. Reviewed and completed cases never do.
func (s CaseStatus) Reviewable() bool {
	return s == StatusPending || s == StatusInReview
}

// IsValid reports whether the role is recognized.
func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleSpecialist, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// CanReview reports whether an actor with this role may submit reviews.
// Only specialists review cases; admins administer but do not diagnose.
func (r Role) CanReview() bool {
	return r == RoleSpecialist
}

// CanAccessReviewQueue reports whether the role may read the review queue
// and its statistics. Admins observe the queue without reviewing.
func (r Role) CanAccessReviewQueue() bool {
	return r == RoleSpecialist || r == RoleAdmin
}

// CanReadAnyCase reports whether the role grants read access to cases the
// actor does not own.
func (r Role) CanReadAnyCase() bool {
	return r == RoleSpecialist || r == RoleAdmin
}
