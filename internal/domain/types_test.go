package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseStatus_Reviewable(t *testing.T) {
	tests := []struct {
		status CaseStatus
		want   bool
	}{
		{StatusPending, true},
		{StatusInReview, true},
		{StatusReviewed, false},
		{StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Reviewable())
		})
	}
}

func TestEnums_IsValid(t *testing.T) {
	assert.True(t, RiskCritical.IsValid())
	assert.False(t, RiskTier("severe").IsValid())

	assert.True(t, UrgencyEmergency.IsValid())
	assert.False(t, Urgency("asap").IsValid())

	assert.True(t, StatusInReview.IsValid())
	assert.False(t, CaseStatus("open").IsValid())

	assert.True(t, RoleSpecialist.IsValid())
	assert.False(t, Role("doctor").IsValid())
}

func TestRole_Permissions(t *testing.T) {
	assert.True(t, RoleSpecialist.CanReview())
	assert.False(t, RolePatient.CanReview())
	assert.False(t, RoleAdmin.CanReview())

	assert.True(t, RoleSpecialist.CanReadAnyCase())
	assert.True(t, RoleAdmin.CanReadAnyCase())
	assert.False(t, RolePatient.CanReadAnyCase())

	assert.True(t, RoleSpecialist.CanAccessReviewQueue())
	assert.True(t, RoleAdmin.CanAccessReviewQueue())
	assert.False(t, RolePatient.CanAccessReviewQueue())
}

func TestCaseRecord_CanBeReadBy(t *testing.T) {
	record := &CaseRecord{ID: "case-1", OwnerID: "patient-1"}

	assert.True(t, record.CanBeReadBy(Actor{ID: "patient-1", Role: RolePatient}))
	assert.False(t, record.CanBeReadBy(Actor{ID: "patient-2", Role: RolePatient}))
	assert.True(t, record.CanBeReadBy(Actor{ID: "spec-1", Role: RoleSpecialist}))
	assert.True(t, record.CanBeReadBy(Actor{ID: "admin-1", Role: RoleAdmin}))
}

func TestNewCaseRecord(t *testing.T) {
	fusion := &FusionResult{
		PredictedLabel:    "conjunctivitis",
		OverallConfidence: 0.829,
		RiskTier:          RiskCritical,
		PerLabelScore:     map[string]float64{"conjunctivitis": 0.829},
	}
	routing := RoutingDecision{Recommended: true, Urgency: UrgencyEmergency, SpecialistType: DefaultSpecialistType}

	record := NewCaseRecord("patient-1", "uploads/eye.jpg", "red itchy eye", fusion, routing)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "patient-1", record.OwnerID)
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, *fusion, record.Fusion)
	assert.Equal(t, routing, record.Routing)
	assert.Nil(t, record.Review)
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestReviewSubmission_Validate(t *testing.T) {
	valid := ReviewSubmission{
		CaseID:         "case-1",
		ReviewerID:     "spec-1",
		FinalDiagnosis: "bacterial conjunctivitis",
		ClinicalNotes:  "discharge consistent with bacterial origin",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ReviewSubmission)
	}{
		{"missing case id", func(s *ReviewSubmission) { s.CaseID = "" }},
		{"missing reviewer id", func(s *ReviewSubmission) { s.ReviewerID = "" }},
		{"blank diagnosis", func(s *ReviewSubmission) { s.FinalDiagnosis = "   " }},
		{"blank notes", func(s *ReviewSubmission) { s.ClinicalNotes = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := valid
			tt.mutate(&sub)
			assert.ErrorIs(t, sub.Validate(), ErrInvalidInput)
		})
	}
}

func TestCodeForError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidObservation, CodeInvalidObservation},
		{ErrWeightMismatch, CodeWeightMismatch},
		{ErrCaseNotFound, CodeCaseNotFound},
		{ErrAlreadyReviewed, CodeAlreadyReviewed},
		{ErrForbidden, CodeForbidden},
		{ErrUpstreamUnavailable, CodeUpstreamUnavailable},
		{ErrInvalidInput, CodeInvalidInput},
		{assert.AnError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeForError(tt.err))
		})
	}

	// Wrapped sentinels map the same as bare ones.
	wrapped := fmt.Errorf("case %q: %w", "case-1", ErrAlreadyReviewed)
	assert.Equal(t, CodeAlreadyReviewed, CodeForError(wrapped))
}
