// ABOUTME: Fetchers retrieving raw asset bytes by URL
// ABOUTME: HTTP, local file and scheme based routing
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher retrieves the raw bytes behind a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// DefaultMaxBytes bounds a single download
const DefaultMaxBytes = 1 << 30

// HTTPFetcher downloads assets over HTTP(S)
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher with the given request timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxBytes,
	}
}

// Fetch downloads url and checks for a 200 response
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("asset larger than %d bytes", f.maxBytes)
	}
	return data, nil
}

// FileFetcher reads file:// URLs and bare paths
type FileFetcher struct{}

// Fetch reads the file behind url
func (FileFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := LocalPath(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

// LocalPath returns the filesystem path of a file:// URL or bare path
func LocalPath(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "file:") {
		if scheme(rawURL) != "" {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
		}
		return filepath.Clean(rawURL), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid file url: %w", err)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	return filepath.FromSlash(path), nil
}

// IsLocal reports whether url names a local file
func IsLocal(rawURL string) bool {
	s := scheme(rawURL)
	return s == "" || s == "file"
}

// Router dispatches to a fetcher by URL scheme. URLs without a scheme
// are routed as "file".
type Router struct {
	routes map[string]Fetcher
}

// NewRouter creates a router serving http, https and file URLs
func NewRouter(timeout time.Duration) *Router {
	httpFetcher := NewHTTPFetcher(timeout)
	r := &Router{routes: make(map[string]Fetcher)}
	r.Handle("http", httpFetcher)
	r.Handle("https", httpFetcher)
	r.Handle("file", FileFetcher{})
	return r
}

// Handle registers f for scheme
func (r *Router) Handle(scheme string, f Fetcher) {
	r.routes[strings.ToLower(scheme)] = f
}

// Fetch routes url to the fetcher for its scheme
func (r *Router) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s := scheme(rawURL)
	if s == "" {
		s = "file"
	}
	f, ok := r.routes[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
	return f.Fetch(ctx, rawURL)
}

// scheme returns the lowercased URL scheme, or "" for bare paths.
// Windows drive letters are not schemes.
func scheme(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i <= 1 {
		if strings.HasPrefix(rawURL, "file:") {
			return "file"
		}
		return ""
	}
	return strings.ToLower(rawURL[:i])
}
