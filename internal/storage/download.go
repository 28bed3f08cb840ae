package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// downloadLimit caps how much media a single transfer may pull in.
const downloadLimit = 256 << 20

// Downloader fetches media from a provider-hosted transient URL.
type Downloader interface {
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPDownloader is the default Downloader over net/http.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader constructs a downloader with a generous timeout suited to
// large video files.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPDownloader{client: client}
}

// Download fetches the URL and returns the body with its content type.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("storage: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, downloadLimit))
	if err != nil {
		return nil, "", fmt.Errorf("storage: read download: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

var _ Downloader = (*HTTPDownloader)(nil)
