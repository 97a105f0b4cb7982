// Package service implements the triage engine's use cases: analyzing a
// submission into a fused, routed case, and moving cases through the
// specialist review workflow.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sympfindx-server/internal/casestore"
	"github.com/sympfindx-server/internal/domain"
	"github.com/sympfindx-server/pkg/classifier"
)

// Notifier receives case lifecycle events. The WebSocket hub implements it;
// tests use a stub.
type Notifier interface {
	NotifyCaseCreated(record *domain.CaseRecord)
	NotifyCaseReviewed(record *domain.CaseRecord)
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyCaseCreated(*domain.CaseRecord)  {}
func (NoopNotifier) NotifyCaseReviewed(*domain.CaseRecord) {}

// AnalyzeRequest is one patient submission: an uploaded image reference,
// a symptom description, or both.
type AnalyzeRequest struct {
	ImageRef    string `json:"image_ref"`
	SymptomText string `json:"symptom_text"`
}

// TriageService orchestrates the analyze pipeline: classify both inputs,
// fuse the observations, derive the routing decision and persist the case.
type TriageService struct {
	logger  *logrus.Logger
	store   casestore.Store
	image   classifier.ImageClassifier
	symptom classifier.SymptomClassifier
	policy  *domain.RoutingPolicy
	fusion  domain.FusionConfig
	notify  Notifier
}

// NewTriageService creates a new triage service. Zero fusion weights fall
// back to the defaults.
func NewTriageService(
	logger *logrus.Logger,
	store casestore.Store,
	image classifier.ImageClassifier,
	symptom classifier.SymptomClassifier,
	policy *domain.RoutingPolicy,
	fusion domain.FusionConfig,
	notify Notifier,
) *TriageService {
	if fusion.ImageWeight == 0 && fusion.TextWeight == 0 {
		fusion.ImageWeight = domain.DefaultImageWeight
		fusion.TextWeight = domain.DefaultTextWeight
	}
	if notify == nil {
		notify = NoopNotifier{}
	}
	return &TriageService{
		logger:  logger,
		store:   store,
		image:   image,
		symptom: symptom,
		policy:  policy,
		fusion:  fusion,
		notify:  notify,
	}
}

// Analyze runs the full triage pipeline for one submission and returns the
// persisted case. At least one of image and symptom text must be present;
// when only one is, that source carries the full fusion weight. Any
// classifier failure aborts the analysis so a case is never created from
// partial evidence.
func (s *TriageService) Analyze(ctx context.Context, actor domain.Actor, req *AnalyzeRequest) (*domain.CaseRecord, error) {
	imageRef := strings.TrimSpace(req.ImageRef)
	symptomText := strings.TrimSpace(req.SymptomText)
	if imageRef == "" && symptomText == "" {
		return nil, fmt.Errorf("submission needs an image or symptom text: %w", domain.ErrInvalidInput)
	}

	sets, err := s.collectObservations(ctx, imageRef, symptomText)
	if err != nil {
		return nil, err
	}

	fusion, err := domain.Fuse(sets)
	if err != nil {
		return nil, err
	}

	routing := s.policy.Route(fusion)

	record := domain.NewCaseRecord(actor.ID, imageRef, symptomText, fusion, routing)
	if err := s.store.CreateCase(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist case: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"case_id":     record.ID,
		"owner_id":    record.OwnerID,
		"label":       fusion.PredictedLabel,
		"confidence":  fusion.OverallConfidence,
		"risk_tier":   fusion.RiskTier,
		"recommended": routing.Recommended,
		"urgency":     routing.Urgency,
		"specialist":  routing.SpecialistType,
	}).Info("Case analyzed")

	s.notify.NotifyCaseCreated(record)
	return record, nil
}

// collectObservations queries both classifiers concurrently and assembles
// the weighted observation sets for fusion.
func (s *TriageService) collectObservations(ctx context.Context, imageRef, symptomText string) ([]domain.ObservationSet, error) {
	imageWeight, textWeight := s.fusion.ImageWeight, s.fusion.TextWeight
	switch {
	case symptomText == "":
		imageWeight, textWeight = 1.0, 0
	case imageRef == "":
		imageWeight, textWeight = 0, 1.0
	}

	var (
		wg                   sync.WaitGroup
		imageObs, symptomObs []domain.ClassifierObservation
		imageErr, symptomErr error
	)

	if imageRef != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageObs, imageErr = s.image.ClassifyImage(ctx, imageRef)
		}()
	}
	if symptomText != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			symptomObs, symptomErr = s.symptom.ClassifySymptoms(ctx, symptomText)
		}()
	}
	wg.Wait()

	if imageErr != nil {
		return nil, fmt.Errorf("image classification failed: %w", imageErr)
	}
	if symptomErr != nil {
		return nil, fmt.Errorf("symptom classification failed: %w", symptomErr)
	}

	var sets []domain.ObservationSet
	if imageRef != "" {
		sets = append(sets, domain.ObservationSet{
			Source:       domain.SourceImage,
			Weight:       imageWeight,
			Observations: imageObs,
		})
	}
	if symptomText != "" {
		sets = append(sets, domain.ObservationSet{
			Source:       domain.SourceText,
			Weight:       textWeight,
			Observations: symptomObs,
		})
	}
	return sets, nil
}

// GetCase returns one case, enforcing read access.
func (s *TriageService) GetCase(ctx context.Context, actor domain.Actor, caseID string) (*domain.CaseRecord, error) {
	record, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !record.CanBeReadBy(actor) {
		return nil, fmt.Errorf("actor %q cannot read case %q: %w", actor.ID, caseID, domain.ErrForbidden)
	}
	return record, nil
}

// History returns the calling patient's own cases, newest first.
func (s *TriageService) History(ctx context.Context, actor domain.Actor, limit, offset int) ([]*domain.CaseRecord, error) {
	limit, offset = normalizePage(limit, offset)
	return s.store.ListByOwner(ctx, actor.ID, limit, offset)
}

// defaultPageSize bounds list queries when the caller asks for nothing
// specific; maxPageSize caps abusive requests.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
