package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one asynchronous video generation submission. The
// provider answers with its own job id; completion arrives later via webhook.
type Request struct {
	Prompt          string
	BaseImageURL    string
	DurationSeconds int
	CallbackURL     string
	RequestID       string
}

// Submitter is the asynchronous video provider contract.
type Submitter interface {
	Submit(ctx context.Context, req Request) (providerJobID string, err error)
	// Cancel asks the provider to abort an in-flight job. Best-effort: some
	// providers do not support it and the webhook may still arrive.
	Cancel(ctx context.Context, providerJobID string) error
}

// Options configures the HTTP client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

const defaultTimeout = 30 * time.Second

// Client calls the external video provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a video provider client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		client:  httpClient,
	}
}

type submitRequest struct {
	Prompt          string `json:"prompt"`
	BaseImageURL    string `json:"base_image_url"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	CallbackURL     string `json:"callback_url,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

type submitResponse struct {
	ProviderJobID string `json:"provider_job_id"`
	Error         string `json:"error,omitempty"`
}

// Submit issues the async generation request and returns the provider-assigned
// job id used to correlate the completion webhook.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(submitRequest{
		Prompt:          req.Prompt,
		BaseImageURL:    req.BaseImageURL,
		DurationSeconds: req.DurationSeconds,
		CallbackURL:     req.CallbackURL,
		RequestID:       req.RequestID,
	})
	if err != nil {
		return "", fmt.Errorf("video provider: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("video provider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("video provider: call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("video provider: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("video provider: status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var out submitResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("video provider: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("video provider: %s", out.Error)
	}
	if out.ProviderJobID == "" {
		return "", fmt.Errorf("video provider: response missing provider job id")
	}
	return out.ProviderJobID, nil
}

// Cancel issues a best-effort abort for an in-flight provider job.
func (c *Client) Cancel(ctx context.Context, providerJobID string) error {
	url := fmt.Sprintf("%s/%s/cancel", c.baseURL, providerJobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("video provider: build cancel request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("video provider: cancel failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("video provider: cancel status %d", resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Submitter = (*Client)(nil)
