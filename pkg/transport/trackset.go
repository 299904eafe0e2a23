// ABOUTME: Resolved track set sharing one timeline
// ABOUTME: One decoded buffer per stem plus the reference duration
package transport

import (
	"fmt"
	"math"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
)

// Track is one resolved stem
type Track struct {
	Key    stem.ID
	URL    string
	Buffer *audio.Buffer
}

// TrackSet is an immutable set of resolved tracks. Every track plays on
// the master's timeline.
type TrackSet struct {
	tracks   [stem.Count]*Track
	duration float64
}

// NewTrackSet validates tracks and builds a set. A non-positive or
// non-finite duration takes the master buffer's duration.
func NewTrackSet(duration float64, tracks ...Track) (*TrackSet, error) {
	ts := &TrackSet{}
	for i := range tracks {
		t := tracks[i]
		if !t.Key.Valid() {
			return nil, fmt.Errorf("%w: %d", stem.ErrUnknown, int(t.Key))
		}
		if ts.tracks[t.Key] != nil {
			return nil, fmt.Errorf("%w: %s", stem.ErrDuplicate, t.Key)
		}
		if t.Buffer == nil || t.Buffer.Frames() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoBuffer, t.Key)
		}
		ts.tracks[t.Key] = &t
	}

	master := ts.tracks[stem.Master]
	if master == nil {
		return nil, stem.ErrNoMaster
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		duration = master.Buffer.Duration()
	}
	ts.duration = duration
	return ts, nil
}

// Duration returns the shared timeline length in seconds
func (ts *TrackSet) Duration() float64 {
	return ts.duration
}

// Track returns the track for key
func (ts *TrackSet) Track(key stem.ID) (*Track, bool) {
	if !key.Valid() || ts.tracks[key] == nil {
		return nil, false
	}
	return ts.tracks[key], true
}

// Keys returns the stems in registry order
func (ts *TrackSet) Keys() []stem.ID {
	keys := make([]stem.ID, 0, stem.Count)
	for _, id := range stem.All() {
		if ts.tracks[id] != nil {
			keys = append(keys, id)
		}
	}
	return keys
}

// Len returns the number of tracks
func (ts *TrackSet) Len() int {
	n := 0
	for _, t := range ts.tracks {
		if t != nil {
			n++
		}
	}
	return n
}
