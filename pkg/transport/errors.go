// ABOUTME: Errors returned by transport operations
// ABOUTME: Rejected operations leave the transport unchanged
package transport

import "errors"

var (
	// ErrNotReady is returned when no track set is loaded. The operation
	// is a no-op and Status reports NotReady.
	ErrNotReady = errors.New("playback not ready")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("transport closed")

	// ErrInvalidRate is returned for rates that are not finite and positive
	ErrInvalidRate = errors.New("invalid playback rate")

	// ErrUnknownTrack is returned for stems missing from the loaded set
	ErrUnknownTrack = errors.New("unknown track")

	// ErrNoBuffer is returned when a track set entry has no decoded buffer
	ErrNoBuffer = errors.New("track has no buffer")
)
