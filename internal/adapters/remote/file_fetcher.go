package remote

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// FileFetcher reads constraint documents from the local filesystem. It accepts
// plain paths and file:// URIs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(uri, "file://")
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraints file: %w", err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("constraint document exceeds %d bytes", maxDocumentBytes)
	}
	return body, nil
}

// Fetcher picks the HTTP or file fetcher from the uri scheme.
type Fetcher struct {
	HTTP *HTTPFetcher
	File FileFetcher
}

func NewFetcher(secret string, timeout time.Duration) Fetcher {
	return Fetcher{HTTP: NewHTTPFetcher(secret, timeout)}
}

func (f Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return f.HTTP.Fetch(ctx, uri)
	}
	return f.File.Fetch(ctx, uri)
}
