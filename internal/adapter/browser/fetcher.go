// Package browser retrieves raw page HTML, either through a headless Chrome
// session or a plain HTTP client.
package browser

import (
	"context"
	"errors"
)

var ErrEmptyPage = errors.New("page returned no content")

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Downloader returns the raw bytes behind a URL, used for PDF links.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}
