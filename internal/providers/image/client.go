package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one synchronous image generation call.
type Request struct {
	Prompt    string
	Style     string
	Quality   string
	Size      string
	RequestID string
}

// Result is the provider's answer: a hosted URL and, when the provider
// inlines bytes, the raw media.
type Result struct {
	URL    string
	Data   []byte
	Mime   string
	Width  int
	Height int
}

// Generator is the synchronous image provider contract.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Options configures the HTTP client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

const defaultTimeout = 45 * time.Second

// Client calls the external image provider over HTTP. The provider is
// request/response; the caller bounds the call with its context deadline.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs an image provider client.
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

type generateRequest struct {
	Prompt    string `json:"prompt"`
	Style     string `json:"style,omitempty"`
	Quality   string `json:"quality,omitempty"`
	Size      string `json:"size,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type generateResponse struct {
	ImageURL string `json:"image_url"`
	Mime     string `json:"mime,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Generate performs the synchronous provider call.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:    req.Prompt,
		Style:     req.Style,
		Quality:   req.Quality,
		Size:      req.Size,
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("image provider: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("image provider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image provider: call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("image provider: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image provider: status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("image provider: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("image provider: %s", out.Error)
	}
	if out.ImageURL == "" {
		return nil, fmt.Errorf("image provider: response missing image url")
	}
	mime := out.Mime
	if mime == "" {
		mime = "image/png"
	}
	return &Result{URL: out.ImageURL, Mime: mime, Width: out.Width, Height: out.Height}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Generator = (*Client)(nil)
