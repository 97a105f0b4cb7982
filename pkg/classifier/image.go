package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sympfindx-server/internal/domain"
)

// ImageClient calls the CNN image classifier service over HTTP.
type ImageClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewImageClient creates a new image classifier client.
func NewImageClient(config domain.ClassifierConfig) *ImageClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &ImageClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// imageRequest is the wire format of an image classification request.
type imageRequest struct {
	ImageRef string `json:"image_ref"`
}

// ClassifyImage sends the image reference to the classifier service and
// returns its candidate labels.
func (c *ImageClient) ClassifyImage(ctx context.Context, imageRef string) ([]domain.ClassifierObservation, error) {
	if imageRef == "" {
		return nil, fmt.Errorf("image reference cannot be empty: %w", domain.ErrInvalidInput)
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := json.Marshal(imageRequest{ImageRef: imageRef})
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
		return nil, fmt.Errorf("image classifier request failed: %w", domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image classifier returned status %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse image classifier response: %w", err)
	}

	return parsed.toObservations(), nil
}
