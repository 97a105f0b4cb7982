package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaseRecord is the persisted unit tracking one patient submission through
// analysis and specialist review. It is created atomically with its fusion
// result and routing decision; a record never exists without them. Status
// transitions happen only through the review workflow, and records are never
// deleted by this engine.
type CaseRecord struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	ImageRef    string          `json:"image_ref"`
	SymptomText string          `json:"symptom_text"`
	Fusion      FusionResult    `json:"fusion"`
	Routing     RoutingDecision `json:"routing"`
	Status      CaseStatus      `json:"status"`
	Review      *ReviewRecord   `json:"review,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ReviewRecord is a specialist's review of a case. Created once per case
// and immutable afterwards; a second review attempt fails with
// ErrAlreadyReviewed.
type ReviewRecord struct {
	ReviewerID              string    `json:"reviewer_id"`
	FinalDiagnosis          string    `json:"final_diagnosis"`
	ClinicalNotes           string    `json:"clinical_notes"`
	TreatmentRecommendation string    `json:"treatment_recommendation"`
	ReviewedAt              time.Time `json:"reviewed_at"`
}

// NewCaseRecord assembles a pending case from its already-computed fusion
// result and routing decision.
func NewCaseRecord(ownerID, imageRef, symptomText string, fusion *FusionResult, routing RoutingDecision) *CaseRecord {
	now := time.Now().UTC()
	return &CaseRecord{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		ImageRef:    imageRef,
		SymptomText: symptomText,
		Fusion:      *fusion,
		Routing:     routing,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanBeReadBy enforces the read-access invariant: the owner always reads
// their own case; specialists and admins read any case.
func (c *CaseRecord) CanBeReadBy(actor Actor) bool {
	return actor.ID == c.OwnerID || actor.Role.CanReadAnyCase()
}

// Clone returns a deep copy of the record. Shared caches hand out clones so
// a caller mutating its copy cannot corrupt another caller's view.
func (c *CaseRecord) Clone() *CaseRecord {
	clone := *c
	if c.Fusion.PerLabelScore != nil {
		scores := make(map[string]float64, len(c.Fusion.PerLabelScore))
		for label, score := range c.Fusion.PerLabelScore {
			scores[label] = score
		}
		clone.Fusion.PerLabelScore = scores
	}
	if c.Routing.RoutedAt != nil {
		routedAt := *c.Routing.RoutedAt
		clone.Routing.RoutedAt = &routedAt
	}
	if c.Review != nil {
		review := *c.Review
		clone.Review = &review
	}
	return &clone
}

// ReviewSubmission carries the inputs of a specialist review.
type ReviewSubmission struct {
	CaseID                  string `json:"case_id"`
	ReviewerID              string `json:"reviewer_id"`
	FinalDiagnosis          string `json:"final_diagnosis"`
	ClinicalNotes           string `json:"clinical_notes"`
	TreatmentRecommendation string `json:"treatment_recommendation"`
}

// Validate checks the required review fields.
func (s *ReviewSubmission) Validate() error {
	if s.CaseID == "" {
		return fmt.Errorf("case id is required: %w", ErrInvalidInput)
	}
	if s.ReviewerID == "" {
		return fmt.Errorf("reviewer id is required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(s.FinalDiagnosis) == "" {
		return fmt.Errorf("final diagnosis is required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(s.ClinicalNotes) == "" {
		return fmt.Errorf("clinical notes are required: %w", ErrInvalidInput)
	}
	return nil
}

// SpecialistStats is the read-only reporting aggregate for one specialist.
type SpecialistStats struct {
	TotalReviewed int64 `json:"total_reviewed"`
	PendingCount  int64 `json:"pending_count"`
}
