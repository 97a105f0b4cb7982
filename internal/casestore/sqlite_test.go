package casestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sympfindx-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "casestore-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "cases.db"))
	require.NoError(t, err)
	return store
}

func testCase(ownerID string) *domain.CaseRecord {
	fusion := &domain.FusionResult{
		PredictedLabel:    "conjunctivitis",
		OverallConfidence: 0.829,
		RiskTier:          domain.RiskCritical,
		PerLabelScore: map[string]float64{
			"conjunctivitis": 0.829,
			"normal":         0.084,
			"stye":           0.021,
		},
	}
	routing := domain.RoutingDecision{
		Recommended:    true,
		Urgency:        domain.UrgencyEmergency,
		SpecialistType: domain.DefaultSpecialistType,
	}
	return domain.NewCaseRecord(ownerID, "uploads/eye.jpg", "red itchy eye with discharge", fusion, routing)
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "casestore-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "cases.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testCase("patient-1")

	require.NoError(t, store.CreateCase(ctx, record))

	got, err := store.GetCase(ctx, record.ID)
	require.NoError(t, err)

	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "patient-1", got.OwnerID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "conjunctivitis", got.Fusion.PredictedLabel)
	assert.InDelta(t, 0.829, got.Fusion.OverallConfidence, 1e-9)
	assert.Equal(t, domain.RiskCritical, got.Fusion.RiskTier)
	assert.InDelta(t, 0.084, got.Fusion.PerLabelScore["normal"], 1e-9)
	assert.True(t, got.Routing.Recommended)
	assert.Equal(t, domain.UrgencyEmergency, got.Routing.Urgency)
	assert.Empty(t, got.Routing.RoutedTo)
	assert.Nil(t, got.Review)
}

func TestSQLiteStore_GetCase_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, err := store.GetCase(context.Background(), "no-such-case")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestSQLiteStore_ListByOwner(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		record := testCase("patient-1")
		record.CreatedAt = record.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateCase(ctx, record))
	}
	require.NoError(t, store.CreateCase(ctx, testCase("patient-2")))

	cases, err := store.ListByOwner(ctx, "patient-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, cases, 3)

	// Newest first.
	for i := 1; i < len(cases); i++ {
		assert.False(t, cases[i-1].CreatedAt.Before(cases[i].CreatedAt))
	}

	page, err := store.ListByOwner(ctx, "patient-1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	empty, err := store.ListByOwner(ctx, "patient-3", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_ListPending(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	recommended := testCase("patient-1")
	require.NoError(t, store.CreateCase(ctx, recommended))

	notRecommended := testCase("patient-2")
	notRecommended.CreatedAt = notRecommended.CreatedAt.Add(time.Second)
	notRecommended.Routing.Recommended = false
	notRecommended.Routing.Urgency = domain.UrgencyRoutine
	require.NoError(t, store.CreateCase(ctx, notRecommended))

	newest, err := store.ListPending(ctx, false, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, notRecommended.ID, newest[0].ID)

	oldest, err := store.ListPending(ctx, false, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, recommended.ID, oldest[0].ID)

	onlyRecommended, err := store.ListPending(ctx, true, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, onlyRecommended, 1)
	assert.Equal(t, recommended.ID, onlyRecommended[0].ID)

	count, err := store.CountPending(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = store.CountPending(ctx, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSQLiteStore_ClaimCase(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testCase("patient-1")
	require.NoError(t, store.CreateCase(ctx, record))

	claimed, err := store.ClaimCase(ctx, record.ID, "spec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInReview, claimed.Status)
	assert.Equal(t, "spec-1", claimed.Routing.RoutedTo)
	require.NotNil(t, claimed.Routing.RoutedAt)

	// A second claim finds the case no longer pending.
	_, err = store.ClaimCase(ctx, record.ID, "spec-2")
	assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)

	_, err = store.ClaimCase(ctx, "no-such-case", "spec-1")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestSQLiteStore_SubmitReview(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testCase("patient-1")
	require.NoError(t, store.CreateCase(ctx, record))

	reviewed, err := store.SubmitReview(ctx, &domain.ReviewSubmission{
		CaseID:                  record.ID,
		ReviewerID:              "spec-1",
		FinalDiagnosis:          "bacterial conjunctivitis",
		ClinicalNotes:           "purulent discharge, recommend topical antibiotics",
		TreatmentRecommendation: "erythromycin ointment",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusReviewed, reviewed.Status)
	require.NotNil(t, reviewed.Review)
	assert.Equal(t, "spec-1", reviewed.Review.ReviewerID)
	assert.Equal(t, "bacterial conjunctivitis", reviewed.Review.FinalDiagnosis)
	assert.False(t, reviewed.Review.ReviewedAt.IsZero())
	assert.Equal(t, "spec-1", reviewed.Routing.RoutedTo)
}

func TestSQLiteStore_SubmitReview_AfterClaim(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testCase("patient-1")
	require.NoError(t, store.CreateCase(ctx, record))

	_, err := store.ClaimCase(ctx, record.ID, "spec-1")
	require.NoError(t, err)

	reviewed, err := store.SubmitReview(ctx, &domain.ReviewSubmission{
		CaseID:         record.ID,
		ReviewerID:     "spec-1",
		FinalDiagnosis: "viral conjunctivitis",
		ClinicalNotes:  "watery discharge, self-limiting",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReviewed, reviewed.Status)
}

func TestSQLiteStore_SubmitReview_AlreadyReviewed(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testCase("patient-1")
	require.NoError(t, store.CreateCase(ctx, record))

	first := &domain.ReviewSubmission{
		CaseID:         record.ID,
		ReviewerID:     "spec-1",
		FinalDiagnosis: "conjunctivitis",
		ClinicalNotes:  "first review",
	}
	_, err := store.SubmitReview(ctx, first)
	require.NoError(t, err)

	second := &domain.ReviewSubmission{
		CaseID:         record.ID,
		ReviewerID:     "spec-2",
		FinalDiagnosis: "stye",
		ClinicalNotes:  "second review",
	}
	_, err = store.SubmitReview(ctx, second)
	assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)

	// The stored review is still the first one.
	got, err := store.GetCase(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Review)
	assert.Equal(t, "spec-1", got.Review.ReviewerID)
	assert.Equal(t, "conjunctivitis", got.Review.FinalDiagnosis)
}

func TestSQLiteStore_SubmitReview_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, err := store.SubmitReview(context.Background(), &domain.ReviewSubmission{
		CaseID:         "no-such-case",
		ReviewerID:     "spec-1",
		FinalDiagnosis: "conjunctivitis",
		ClinicalNotes:  "notes",
	})
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestSQLiteStore_SubmitReview_Concurrent(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testCase("patient-1")
	require.NoError(t, store.CreateCase(ctx, record))

	const reviewers = 8
	var wg sync.WaitGroup
	errs := make([]error, reviewers)

	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.SubmitReview(ctx, &domain.ReviewSubmission{
				CaseID:         record.ID,
				ReviewerID:     "spec-" + string(rune('a'+i)),
				FinalDiagnosis: "conjunctivitis",
				ClinicalNotes:  "concurrent review",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent review must win")
}

func TestSQLiteStore_ReviewedByAndCounts(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		record := testCase("patient-1")
		record.CreatedAt = record.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateCase(ctx, record))

		_, err := store.SubmitReview(ctx, &domain.ReviewSubmission{
			CaseID:         record.ID,
			ReviewerID:     "spec-1",
			FinalDiagnosis: "conjunctivitis",
			ClinicalNotes:  "notes",
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.CreateCase(ctx, testCase("patient-2")))

	reviewed, err := store.ListReviewedBy(ctx, "spec-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, reviewed, 2)

	count, err := store.CountReviewedBy(ctx, "spec-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = store.CountReviewedBy(ctx, "spec-2")
	require.NoError(t, err)
	assert.Zero(t, count)

	pending, err := store.CountPending(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestSQLiteStore_Health(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	assert.NoError(t, store.Health(context.Background()))
}
