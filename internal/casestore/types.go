// Package casestore provides persistent storage for triage cases and their
// specialist reviews. Two backends implement the same Store interface:
// SQLite for single-node deployments and PostgreSQL for shared ones.
package casestore

import (
	"context"

	"github.com/sympfindx-server/internal/domain"
)

// Store defines the interface for case storage operations.
//
// The review transition is the one mutating hot spot: SubmitReview must be
// atomic so that exactly one of two concurrent submissions for the same case
// succeeds and the other fails with domain.ErrAlreadyReviewed.
type Store interface {
	// CreateCase persists a freshly analyzed case in pending status.
	CreateCase(ctx context.Context, record *domain.CaseRecord) error

	// GetCase retrieves a case by ID.
	// Returns domain.ErrCaseNotFound if no such case exists.
	GetCase(ctx context.Context, id string) (*domain.CaseRecord, error)

	// ListByOwner returns the cases submitted by one patient,
	// newest first, with pagination.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CaseRecord, error)

	// ListPending returns cases awaiting review, sorted by creation time:
	// newest first when newestFirst is set, oldest first otherwise so the
	// queue drains fairly. When recommendedOnly is set, only cases whose
	// routing recommended specialist attention are returned.
	ListPending(ctx context.Context, recommendedOnly, newestFirst bool, limit, offset int) ([]*domain.CaseRecord, error)

	// ListReviewedBy returns the cases a specialist has reviewed,
	// most recently reviewed first, with pagination.
	ListReviewedBy(ctx context.Context, reviewerID string, limit, offset int) ([]*domain.CaseRecord, error)

	// CountReviewedBy returns how many cases a specialist has reviewed.
	CountReviewedBy(ctx context.Context, reviewerID string) (int64, error)

	// CountPending returns how many cases await review. When recommendedOnly
	// is set, only routing-recommended cases are counted.
	CountPending(ctx context.Context, recommendedOnly bool) (int64, error)

	// ClaimCase transitions a pending case to in_review for the given
	// specialist. Returns domain.ErrCaseNotFound if the case does not exist
	// and domain.ErrAlreadyReviewed if it has left pending status.
	ClaimCase(ctx context.Context, caseID, reviewerID string) (*domain.CaseRecord, error)

	// SubmitReview atomically records a specialist review and transitions
	// the case to reviewed. The compare-and-set covers both pending and
	// in_review states. Returns domain.ErrCaseNotFound or
	// domain.ErrAlreadyReviewed on failure; on success the stored record
	// with the review attached is returned.
	SubmitReview(ctx context.Context, submission *domain.ReviewSubmission) (*domain.CaseRecord, error)

	// Health verifies the backing database is reachable.
	Health(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
