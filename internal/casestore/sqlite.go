package casestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sympfindx-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite case store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency between the analyze and review paths.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		image_ref TEXT NOT NULL DEFAULT '',
		symptom_text TEXT NOT NULL DEFAULT '',
		predicted_label TEXT NOT NULL,
		overall_confidence REAL NOT NULL,
		risk_tier TEXT NOT NULL,
		per_label_score TEXT NOT NULL DEFAULT '{}',
		recommended INTEGER NOT NULL DEFAULT 0,
		urgency TEXT NOT NULL,
		specialist_type TEXT NOT NULL,
		routed_to TEXT,
		routed_at DATETIME,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer_id TEXT,
		final_diagnosis TEXT,
		clinical_notes TEXT,
		treatment_recommendation TEXT,
		reviewed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_owner ON cases(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_cases_reviewer ON cases(reviewer_id, reviewed_at);
	`

	_, err := db.Exec(schema)
	return err
}

// caseColumns is the shared SELECT column list; scanCase must stay in sync.
const caseColumns = `id, owner_id, image_ref, symptom_text,
	predicted_label, overall_confidence, risk_tier, per_label_score,
	recommended, urgency, specialist_type, routed_to, routed_at,
	status, reviewer_id, final_diagnosis, clinical_notes,
	treatment_recommendation, reviewed_at, created_at, updated_at`

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanCase scans a row into a domain.CaseRecord.
func scanCase(s scanner) (*domain.CaseRecord, error) {
	record := &domain.CaseRecord{}
	var riskTier, urgency, status, perLabelJSON string
	var routedTo, reviewerID, diagnosis, notes, treatment sql.NullString
	var routedAt, reviewedAt sql.NullTime

	err := s.Scan(
		&record.ID, &record.OwnerID, &record.ImageRef, &record.SymptomText,
		&record.Fusion.PredictedLabel, &record.Fusion.OverallConfidence, &riskTier, &perLabelJSON,
		&record.Routing.Recommended, &urgency, &record.Routing.SpecialistType, &routedTo, &routedAt,
		&status, &reviewerID, &diagnosis, &notes,
		&treatment, &reviewedAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Fusion.RiskTier = domain.RiskTier(riskTier)
	record.Routing.Urgency = domain.Urgency(urgency)
	record.Status = domain.CaseStatus(status)

	if err := json.Unmarshal([]byte(perLabelJSON), &record.Fusion.PerLabelScore); err != nil {
		return nil, fmt.Errorf("failed to decode per-label scores: %w", err)
	}

	if routedTo.Valid {
		record.Routing.RoutedTo = routedTo.String
	}
	if routedAt.Valid {
		t := routedAt.Time
		record.Routing.RoutedAt = &t
	}
	if reviewerID.Valid {
		record.Review = &domain.ReviewRecord{
			ReviewerID:              reviewerID.String,
			FinalDiagnosis:          diagnosis.String,
			ClinicalNotes:           notes.String,
			TreatmentRecommendation: treatment.String,
			ReviewedAt:              reviewedAt.Time,
		}
	}

	return record, nil
}

// CreateCase persists a freshly analyzed case in pending status.
func (s *SQLiteStore) CreateCase(ctx context.Context, record *domain.CaseRecord) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLiteStore) GetCase(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE id = ?", id)

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
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	return collectCases(rows)
}

// ListPending returns cases awaiting review, sorted by creation time.
func (s *SQLiteStore) ListPending(ctx context.Context, recommendedOnly, newestFirst bool, limit, offset int) ([]*domain.CaseRecord, error) {
	query := "SELECT " + caseColumns + " FROM cases WHERE status IN (?, ?)"
	args := []interface{}{string(domain.StatusPending), string(domain.StatusInReview)}
	if recommendedOnly {
		query += " AND recommended = 1"
	}
	query += " ORDER BY created_at " + sortDirection(newestFirst) + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending cases: %w", err)
	}
	return collectCases(rows)
}

// ListReviewedBy returns the cases a specialist has reviewed, newest review first.
func (s *SQLiteStore) ListReviewedBy(ctx context.Context, reviewerID string, limit, offset int) ([]*domain.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+caseColumns+" FROM cases WHERE status = ? AND reviewer_id = ? ORDER BY reviewed_at DESC LIMIT ? OFFSET ?",
		string(domain.StatusReviewed), reviewerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviewed cases: %w", err)
	}
	return collectCases(rows)
}

// CountReviewedBy returns how many cases a specialist has reviewed.
func (s *SQLiteStore) CountReviewedBy(ctx context.Context, reviewerID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cases WHERE status = ? AND reviewer_id = ?",
		string(domain.StatusReviewed), reviewerID).Scan(&count)
	return count, err
}

// CountPending returns how many cases await review.
func (s *SQLiteStore) CountPending(ctx context.Context, recommendedOnly bool) (int64, error) {
	query := "SELECT COUNT(*) FROM cases WHERE status IN (?, ?)"
	if recommendedOnly {
		query += " AND recommended = 1"
	}
	var count int64
	err := s.db.QueryRowContext(ctx, query,
		string(domain.StatusPending), string(domain.StatusInReview)).Scan(&count)
	return count, err
}

// ClaimCase transitions a pending case to in_review for the given specialist.
func (s *SQLiteStore) ClaimCase(ctx context.Context, caseID, reviewerID string) (*domain.CaseRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET status = ?, routed_to = ?, routed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(domain.StatusInReview), reviewerID, now, now,
		caseID, string(domain.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim case: %w", err)
	}
	return s.afterConditionalUpdate(ctx, result, caseID)
}

// SubmitReview atomically records a specialist review. The conditional
// UPDATE is the compare-and-set: only one concurrent submission can move the
// row out of a reviewable status.
func (s *SQLiteStore) SubmitReview(ctx context.Context, submission *domain.ReviewSubmission) (*domain.CaseRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET status = ?, reviewer_id = ?, final_diagnosis = ?, clinical_notes = ?,
			treatment_recommendation = ?, reviewed_at = ?,
			routed_to = ?, routed_at = COALESCE(routed_at, ?), updated_at = ?
		WHERE id = ? AND status IN (?, ?)
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
func (s *SQLiteStore) afterConditionalUpdate(ctx context.Context, result sql.Result, caseID string) (*domain.CaseRecord, error) {
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

// sortDirection maps a newest-first flag onto the SQL keyword.
func sortDirection(newestFirst bool) string {
	if newestFirst {
		return "DESC"
	}
	return "ASC"
}

// collectCases drains a result set into case records.
func collectCases(rows *sql.Rows) ([]*domain.CaseRecord, error) {
	defer rows.Close()

	var result []*domain.CaseRecord
	for rows.Next() {
		record, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// Health verifies the database is reachable.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
