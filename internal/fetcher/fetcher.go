// Package fetcher downloads open-data files and parses the CSV, ZIP and XLSX
// formats they are published in.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns the bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged refreshes path only when the server's ETag differs
	// from the one recorded alongside the file. It reports whether the
	// file was (re)written.
	DownloadIfChanged(ctx context.Context, url string, path string) (bool, error)
}
