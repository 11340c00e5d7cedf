package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"sheetfetch/internal/services"
)

// maxPageBytes caps a single page image download.
const maxPageBytes = 32 << 20

// HTTPFetcher downloads page images over plain HTTP.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher builds a fetcher. A zero timeout leaves the deadline to the
// request context.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, userAgent: userAgent}
}

// Fetch returns the body of url. Non-200 responses are network errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "fetch page", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, "catalog", "fetch page", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrNetwork, "catalog", "fetch page", fmt.Sprintf("%s returned %s", url, resp.Status), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, "catalog", "fetch page", url, err)
	}
	if len(data) > maxPageBytes {
		return nil, services.Wrap(services.ErrNetwork, "catalog", "fetch page", url+" exceeds size limit", nil)
	}
	return data, nil
}
