// Package fetcher downloads remote data over HTTP with retry, backoff,
// and per-host rate limiting.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body as a
	// stream. The caller must close it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// Get fetches the URL and returns the full response body.
	Get(ctx context.Context, url string) ([]byte, error)
}
