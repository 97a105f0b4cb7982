package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sympfindx-server/internal/domain"
)

// SymptomClient calls the NLP symptom classifier service over HTTP.
type SymptomClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewSymptomClient creates a new symptom classifier client.
func NewSymptomClient(config domain.ClassifierConfig) *SymptomClient {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20
	}

	return &SymptomClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// symptomRequest is the wire format of a symptom classification request.
type symptomRequest struct {
	Text string `json:"text"`
}

// ClassifySymptoms sends the symptom text to the classifier service and
// returns its candidate labels.
func (c *SymptomClient) ClassifySymptoms(ctx context.Context, symptomText string) ([]domain.ClassifierObservation, error) {
	symptomText = strings.TrimSpace(symptomText)
	if symptomText == "" {
		return nil, fmt.Errorf("symptom text cannot be empty: %w", domain.ErrInvalidInput)
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := json.Marshal(symptomRequest{Text: symptomText})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("symptom classifier request failed: %w", domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("symptom classifier returned status %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse symptom classifier response: %w", err)
	}

	return parsed.toObservations(), nil
}
