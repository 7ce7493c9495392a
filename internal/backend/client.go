package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config contains backend client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries the transcription backend over HTTP. Retries are the
// poller's job: a transient error here simply costs one poll attempt.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new backend HTTP client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// JobStatus fetches the current status of a transcription job and
// normalizes the payload onto the current field scheme.
func (c *Client) JobStatus(ctx context.Context, jobID string) (JobResult, error) {
	if jobID == "" {
		return JobResult{}, fmt.Errorf("job id cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/v1/jobs/%s", c.config.BaseURL, url.PathEscape(jobID))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return JobResult{}, err
	}

	var payload StatusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return JobResult{}, fmt.Errorf("failed to parse status response: %w", err)
	}

	result := payload.Normalize()

	c.logger.Debug("fetched job status",
		zap.String("component", "backend"),
		zap.String("job_id", jobID),
		zap.String("status", string(result.Status)),
		zap.String("stage", result.Stage),
		zap.Int("progress", result.Progress))

	return result, nil
}

// GetTranscript fetches just the plain transcript for a job. Used as a
// backstop when a job reports completion without transcript data.
func (c *Client) GetTranscript(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job id cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/v1/jobs/%s/transcript", c.config.BaseURL, url.PathEscape(jobID))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var payload struct {
		Transcript string `json:"transcript"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse transcript response: %w", err)
	}

	if payload.Transcript != "" {
		return payload.Transcript, nil
	}
	return payload.Text, nil
}

// get performs a single GET request against the backend
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "meetscribe/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
