package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxDocumentBytes    = 4 << 20
)

var ErrSignatureMismatch = errors.New("constraint document signature mismatch")

// HTTPFetcher GETs constraint documents. When a secret is configured the
// response must carry a matching X-Hub-Signature-256 header.
type HTTPFetcher struct {
	secret []byte
	client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests are bounded by timeout. A
// zero or negative timeout falls back to defaultFetchTimeout (10 s).
func NewHTTPFetcher(secret string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch constraints: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("constraints endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("constraint document exceeds %d bytes", maxDocumentBytes)
	}

	if len(f.secret) > 0 {
		got := strings.TrimPrefix(resp.Header.Get(SignatureHeader), "sha256=")
		if !Verify(f.secret, body, got) {
			return nil, ErrSignatureMismatch
		}
	}
	return body, nil
}
