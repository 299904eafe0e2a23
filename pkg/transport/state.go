// ABOUTME: Transport states and the status snapshot
// ABOUTME: Stopped, Playing and Paused plus derived song time
package transport

import (
	"github.com/stemdeck/stemdeck-go/pkg/clock"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
)

// State is the transport state
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the transport
type Status struct {
	State     State
	SongTime  float64
	Duration  float64
	Rate      float64
	Volume    float64
	Loop      *clock.Region
	Tracks    []stem.ID
	Muted     []stem.ID
	Ready     bool
	NotReady  bool  // last operation was rejected for lack of tracks
	LoadError error // last failed load, cleared by a successful one
}

// Playing reports whether the transport is playing
func (s Status) Playing() bool {
	return s.State == Playing
}
