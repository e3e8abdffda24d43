package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// userAgent is sent with every request; several video sites serve reduced
// pages to clients without a browser-like agent.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// HTTPDownloader implements ports.Downloader using standard HTTP.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a new HTTPDownloader with the given overall
// request timeout (30s when zero).
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDownloader{
		client: &http.Client{Timeout: timeout},
	}
}

// Client exposes the underlying HTTP client for libraries that take one.
func (d *HTTPDownloader) Client() *http.Client {
	return d.client
}

// Download fetches resourceURL. The caller must close the returned body.
func (d *HTTPDownloader) Download(ctx context.Context, resourceURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", resourceURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
