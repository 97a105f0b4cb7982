package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/sympfindx-server/internal/domain"
)

// ResilientClient wraps both classifier clients with circuit breakers so a
// failing upstream model fails fast instead of tying up analyze requests.
// An open breaker surfaces as domain.ErrUpstreamUnavailable like any other
// upstream failure.
type ResilientClient struct {
	image   ImageClassifier
	symptom SymptomClassifier

	imageBreaker   *gobreaker.CircuitBreaker
	symptomBreaker *gobreaker.CircuitBreaker
}

// NewResilientClient creates circuit-breaker-wrapped classifier clients.
func NewResilientClient(image ImageClassifier, symptom SymptomClassifier, logger *logrus.Logger) *ResilientClient {
	onStateChange := func(name string, from gobreaker.State, to gobreaker.State) {
		logger.WithFields(logrus.Fields{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}).Warn("Circuit breaker state changed")
	}

	imageBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "image-classifier",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: onStateChange,
	})

	symptomBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "symptom-classifier",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: onStateChange,
	})

	return &ResilientClient{
		image:          image,
		symptom:        symptom,
		imageBreaker:   imageBreaker,
		symptomBreaker: symptomBreaker,
	}
}

// ClassifyImage runs the image classifier through its circuit breaker.
func (r *ResilientClient) ClassifyImage(ctx context.Context, imageRef string) ([]domain.ClassifierObservation, error) {
	result, err := r.imageBreaker.Execute(func() (interface{}, error) {
		return r.image.ClassifyImage(ctx, imageRef)
	})
	if err != nil {
		return nil, breakerError("image classifier", err)
	}
	return result.([]domain.ClassifierObservation), nil
}

// ClassifySymptoms runs the symptom classifier through its circuit breaker.
func (r *ResilientClient) ClassifySymptoms(ctx context.Context, symptomText string) ([]domain.ClassifierObservation, error) {
	result, err := r.symptomBreaker.Execute(func() (interface{}, error) {
		return r.symptom.ClassifySymptoms(ctx, symptomText)
	})
	if err != nil {
		return nil, breakerError("symptom classifier", err)
	}
	return result.([]domain.ClassifierObservation), nil
}

// breakerError normalizes breaker rejections to the upstream failure
// sentinel; other errors pass through unchanged.
func breakerError(name string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%s circuit open: %w", name, domain.ErrUpstreamUnavailable)
	}
	return err
}
