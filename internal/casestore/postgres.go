package casestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sympfindx-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL case store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL case store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// CreateCase persists a freshly analyzed case in pending status.
func (s *PostgresStore) CreateCase(ctx context.Context, record *domain.CaseRecord) error {
	perLabelJSON, err := json.Marshal(record.Fusion.PerLabelScore)
	if err != nil {
		return fmt.Errorf("failed to encode per-label scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (
			id, owner_id, image_ref, symptom_text,
			predicted_label, overall_confidence, risk_tier, per_label_score,
			recommended, urgency, specialist_type,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		record.ID, record.OwnerID, record.ImageRef, record.SymptomText,
		record.Fusion.PredictedLabel, record.Fusion.OverallConfidence,
		string(record.Fusion.RiskTier), string(perLabelJSON),
		record.Routing.Recommended, string(record.Routing.Urgency), record.Routing.SpecialistType,
		string(record.Status), record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// GetCase retrieves a case by ID.
func (s *PostgresStore) GetCase(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE id = $1", id)

	record, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("case %q: %w", id, domain.ErrCaseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}
	return record, nil
}

// ListByOwner returns the cases submitted by one patient, newest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	return collectCases(rows)
}

// ListPending returns cases awaiting review, sorted by creation time.
func (s *PostgresStore) ListPending(ctx context.Context, recommendedOnly, newestFirst bool, limit, offset int) ([]*domain.CaseRecord, error) {
	query := "SELECT " + caseColumns + " FROM cases WHERE status IN ($1, $2)"
	if recommendedOnly {
		query += " AND recommended = TRUE"
	}
	query += " ORDER BY created_at " + sortDirection(newestFirst) + " LIMIT $3 OFFSET $4"

	rows, err := s.db.QueryContext(ctx, query,
		string(domain.StatusPending), string(domain.StatusInReview), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending cases: %w", err)
	}
	return collectCases(rows)
}

// ListReviewedBy returns the cases a specialist has reviewed, newest review first.
func (s *PostgresStore) ListReviewedBy(ctx context.Context, reviewerID string, limit, offset int) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE status = $1 AND reviewer_id = $2 ORDER BY reviewed_at DESC LIMIT $3 OFFSET $4",
		string(domain.StatusReviewed), reviewerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviewed cases: %w", err)
	}
	return collectCases(rows)
}

// CountReviewedBy returns how many cases a specialist has reviewed.
func (s *PostgresStore) CountReviewedBy(ctx context.Context, reviewerID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cases WHERE status = $1 AND reviewer_id = $2",
		string(domain.StatusReviewed), reviewerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviewed cases: %w", err)
	}
	return count, nil
}

// CountPending returns how many cases await review.
func (s *PostgresStore) CountPending(ctx context.Context, recommendedOnly bool) (int64, error) {
	query := "SELECT COUNT(*) FROM cases WHERE status IN ($1, $2)"
	if recommendedOnly {
		query += " AND recommended = TRUE"
	}
	var count int64
	err := s.db.QueryRowContext(ctx, query,
		string(domain.StatusPending), string(domain.StatusInReview)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending cases: %w", err)
	}
	return count, nil
}

// ClaimCase transitions a pending case to in_review for the given specialist.
func (s *PostgresStore) ClaimCase(ctx context.Context, caseID, reviewerID string) (*domain.CaseRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, routed_to = $2, routed_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`,
		string(domain.StatusInReview), reviewerID, now, now,
		caseID, string(domain.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim case: %w", err)
	}
	return s.afterConditionalUpdate(ctx, result, caseID)
}

// SubmitReview atomically records a specialist review via a conditional
// UPDATE; row-level locking guarantees only one concurrent submission wins.
func (s *PostgresStore) SubmitReview(ctx context.Context, submission *domain.ReviewSubmission) (*domain.CaseRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, reviewer_id = $2, final_diagnosis = $3, clinical_notes = $4,
			treatment_recommendation = $5, reviewed_at = $6,
			routed_to = $7, routed_at = COALESCE(routed_at, $8), updated_at = $9
		WHERE id = $10 AND status IN ($11, $12)
	`,
		string(domain.StatusReviewed), submission.ReviewerID,
		submission.FinalDiagnosis, submission.ClinicalNotes,
		submission.TreatmentRecommendation, now,
		submission.ReviewerID, now, now,
		submission.CaseID, string(domain.StatusPending), string(domain.StatusInReview),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit review: %w", err)
	}
	return s.afterConditionalUpdate(ctx, result, submission.CaseID)
}

// afterConditionalUpdate disambiguates a zero-row conditional update into
// not-found versus already-reviewed, and returns the stored record on success.
func (s *PostgresStore) afterConditionalUpdate(ctx context.Context, result sql.Result, caseID string) (*domain.CaseRecord, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		existing, err := s.GetCase(ctx, caseID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("case %q is %s: %w", caseID, existing.Status, domain.ErrAlreadyReviewed)
	}
	return s.GetCase(ctx, caseID)
}

// Health verifies the database is reachable.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
