package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
)

// Analyzer is the downstream image-analysis collaborator. The call is
// idempotent per reconstructed payload, so transport-level retries are safe.
type Analyzer interface {
	Analyze(ctx context.Context, payload string, selection *models.Selection) (string, error)
}

type HTTPAnalyzerImpl struct {
	client   *retryablehttp.Client
	endpoint string
	apiKey   string

	logger logging.Logger
}

func NewHTTPAnalyzerImpl(endpoint string, apiKey string, l logging.Logger) *HTTPAnalyzerImpl {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil

	return &HTTPAnalyzerImpl{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   l,
	}
}

type analyzeRequest struct {
	Image     string            `json:"image"`
	Selection *models.Selection `json:"selection,omitempty"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
}

func (a *HTTPAnalyzerImpl) Analyze(ctx context.Context, payload string, selection *models.Selection) (string, error) {
	body, err := json.Marshal(analyzeRequest{
		Image:     payload,
		Selection: selection,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %s", apperror.ErrUpstreamAnalysis, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %s", apperror.ErrUpstreamAnalysis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Key "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("analysis request failed", "endpoint", a.endpoint, "error", err)
		return "", fmt.Errorf("%w: %s", apperror.ErrUpstreamAnalysis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Error("analysis returned non-success status", "status", resp.StatusCode, "body", string(snippet))
		return "", fmt.Errorf("%w: status %d: %s", apperror.ErrUpstreamAnalysis, resp.StatusCode, string(snippet))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %s", apperror.ErrUpstreamAnalysis, err)
	}

	if out.Analysis == "" {
		return "", fmt.Errorf("%w: response carried no analysis", apperror.ErrUpstreamAnalysis)
	}

	return out.Analysis, nil
}
