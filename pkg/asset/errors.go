// ABOUTME: Error types surfaced by asset resolution
// ABOUTME: Fetch and decode failures carry the URL that failed
package asset

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Get after Close
	ErrClosed = errors.New("asset cache closed")

	// ErrNotFound is returned by fetchers when the asset does not exist
	ErrNotFound = errors.New("asset not found")

	// ErrUnsupportedScheme is returned by Router for unrouted URL schemes
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// FetchError reports a failure retrieving the raw bytes of an asset
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports corrupt or unsupported audio data
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
