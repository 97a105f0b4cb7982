package casestore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sympfindx-server/internal/domain"
)

// CachedStore wraps a Store with an in-memory LRU over single-case reads.
// Case records are small and read-heavy once created (patients poll their
// own case while it sits in the review queue), so a modest cache absorbs
// most GetCase traffic. Mutations invalidate the affected entry; list and
// count queries always go to the backing store.
type CachedStore struct {
	store Store
	cache *lru.Cache[string, *domain.CaseRecord]
}

// NewCachedStore wraps store with an LRU of the given size.
func NewCachedStore(store Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *domain.CaseRecord](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create case cache: %w", err)
	}
	return &CachedStore{store: store, cache: cache}, nil
}

// CreateCase persists the case and primes the cache with it.
func (c *CachedStore) CreateCase(ctx context.Context, record *domain.CaseRecord) error {
	if err := c.store.CreateCase(ctx, record); err != nil {
		return err
	}
	c.cache.Add(record.ID, record.Clone())
	return nil
}

// GetCase serves from the cache when possible, falling back to the store.
// Hits return a clone so callers never share the cached record.
func (c *CachedStore) GetCase(ctx context.Context, id string) (*domain.CaseRecord, error) {
	if record, ok := c.cache.Get(id); ok {
		return record.Clone(), nil
	}

	record, err := c.store.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, record.Clone())
	return record, nil
}

// ListByOwner passes through to the backing store.
func (c *CachedStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CaseRecord, error) {
	return c.store.ListByOwner(ctx, ownerID, limit, offset)
}

// ListPending passes through to the backing store.
func (c *CachedStore) ListPending(ctx context.Context, recommendedOnly, newestFirst bool, limit, offset int) ([]*domain.CaseRecord, error) {
	return c.store.ListPending(ctx, recommendedOnly, newestFirst, limit, offset)
}

// ListReviewedBy passes through to the backing store.
func (c *CachedStore) ListReviewedBy(ctx context.Context, reviewerID string, limit, offset int) ([]*domain.CaseRecord, error) {
	return c.store.ListReviewedBy(ctx, reviewerID, limit, offset)
}

// CountReviewedBy passes through to the backing store.
func (c *CachedStore) CountReviewedBy(ctx context.Context, reviewerID string) (int64, error) {
	return c.store.CountReviewedBy(ctx, reviewerID)
}

// CountPending passes through to the backing store.
func (c *CachedStore) CountPending(ctx context.Context, recommendedOnly bool) (int64, error) {
	return c.store.CountPending(ctx, recommendedOnly)
}

// ClaimCase claims through the backing store and refreshes the cache entry.
func (c *CachedStore) ClaimCase(ctx context.Context, caseID, reviewerID string) (*domain.CaseRecord, error) {
	record, err := c.store.ClaimCase(ctx, caseID, reviewerID)
	if err != nil {
		c.cache.Remove(caseID)
		return nil, err
	}
	c.cache.Add(caseID, record.Clone())
	return record, nil
}

// SubmitReview submits through the backing store and refreshes the cache
// entry, so a read immediately after review sees the reviewed case.
func (c *CachedStore) SubmitReview(ctx context.Context, submission *domain.ReviewSubmission) (*domain.CaseRecord, error) {
	record, err := c.store.SubmitReview(ctx, submission)
	if err != nil {
		c.cache.Remove(submission.CaseID)
		return nil, err
	}
	c.cache.Add(submission.CaseID, record.Clone())
	return record, nil
}

// Health passes through to the backing store.
func (c *CachedStore) Health(ctx context.Context) error {
	return c.store.Health(ctx)
}

// Close purges the cache and closes the backing store.
func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.store.Close()
}
