// Package fetcher downloads NID resources over HTTP and streams the
// tab-separated lists that drive discovery and downloads.
package fetcher

import (
	"context"
	"fmt"
	"io"
)

// Fetcher downloads remote resources.
type Fetcher interface {
	// Download returns the body of a 200 response. Any other final status
	// yields a *StatusError.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the body of a 200 response to path and returns
	// the number of bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// StatusError reports a final non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
}
