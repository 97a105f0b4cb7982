package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sympfindx-server/internal/casestore"
	"github.com/sympfindx-server/internal/domain"
)

// ReviewService implements the specialist review workflow over the case
// store: the pending queue, claiming, review submission and per-specialist
// statistics. Authorization happens here; the store trusts its callers.
type ReviewService struct {
	logger *logrus.Logger
	store  casestore.Store
	notify Notifier
}

// NewReviewService creates a new review service.
func NewReviewService(logger *logrus.Logger, store casestore.Store, notify Notifier) *ReviewService {
	if notify == nil {
		notify = NoopNotifier{}
	}
	return &ReviewService{
		logger: logger,
		store:  store,
		notify: notify,
	}
}

// PendingCases returns the review queue, sorted by creation time. Admins
// may observe the queue; only specialists act on it.
func (s *ReviewService) PendingCases(ctx context.Context, actor domain.Actor, recommendedOnly, newestFirst bool, limit, offset int) ([]*domain.CaseRecord, error) {
	if !actor.Role.CanAccessReviewQueue() {
		return nil, fmt.Errorf("role %q cannot access the review queue: %w", actor.Role, domain.ErrForbidden)
	}
	limit, offset = normalizePage(limit, offset)
	return s.store.ListPending(ctx, recommendedOnly, newestFirst, limit, offset)
}

// ClaimCase marks a pending case as in review by the calling specialist.
func (s *ReviewService) ClaimCase(ctx context.Context, actor domain.Actor, caseID string) (*domain.CaseRecord, error) {
	if !actor.Role.CanReview() {
		return nil, fmt.Errorf("role %q cannot claim cases: %w", actor.Role, domain.ErrForbidden)
	}

	record, err := s.store.ClaimCase(ctx, caseID, actor.ID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"case_id":     caseID,
		"reviewer_id": actor.ID,
	}).Info("Case claimed for review")

	return record, nil
}

// SubmitReview records the specialist's review of a case. The submission's
// reviewer is always the calling actor, and at most one review ever succeeds
// per case regardless of concurrency.
func (s *ReviewService) SubmitReview(ctx context.Context, actor domain.Actor, submission *domain.ReviewSubmission) (*domain.CaseRecord, error) {
	if !actor.Role.CanReview() {
		return nil, fmt.Errorf("role %q cannot submit reviews: %w", actor.Role, domain.ErrForbidden)
	}

	submission.ReviewerID = actor.ID
	if err := submission.Validate(); err != nil {
		return nil, err
	}

	record, err := s.store.SubmitReview(ctx, submission)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"case_id":     record.ID,
		"reviewer_id": actor.ID,
		"diagnosis":   submission.FinalDiagnosis,
	}).Info("Review submitted")

	s.notify.NotifyCaseReviewed(record)
	return record, nil
}

// ReviewedCases returns the cases the calling actor has reviewed, most
// recent first. Open to admins, whose own list is simply empty.
func (s *ReviewService) ReviewedCases(ctx context.Context, actor domain.Actor, limit, offset int) ([]*domain.CaseRecord, error) {
	if !actor.Role.CanAccessReviewQueue() {
		return nil, fmt.Errorf("role %q cannot list reviewed cases: %w", actor.Role, domain.ErrForbidden)
	}
	limit, offset = normalizePage(limit, offset)
	return s.store.ListReviewedBy(ctx, actor.ID, limit, offset)
}

// Stats returns the calling actor's review workload statistics.
func (s *ReviewService) Stats(ctx context.Context, actor domain.Actor) (*domain.SpecialistStats, error) {
	if !actor.Role.CanAccessReviewQueue() {
		return nil, fmt.Errorf("role %q cannot access specialist stats: %w", actor.Role, domain.ErrForbidden)
	}

	reviewed, err := s.store.CountReviewedBy(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviewed cases: %w", err)
	}
	pending, err := s.store.CountPending(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending cases: %w", err)
	}

	return &domain.SpecialistStats{
		TotalReviewed: reviewed,
		PendingCount:  pending,
	}, nil
}
