// ABOUTME: Pure mapping from the hardware audio clock to song time
// ABOUTME: Anchors, loop normalization and rate reanchoring
package clock

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRegion is returned for loop regions with end <= start
var ErrInvalidRegion = errors.New("invalid loop region")

// Anchor ties one hardware clock reading to a song position and rate.
// It stays valid until the next play, pause, seek, rate change or wrap.
type Anchor struct {
	HardwareTime float64 // seconds on the host clock
	SongTime     float64 // seconds on the song timeline
	Rate         float64 // song seconds per hardware second
}

// Region is a loop region on the song timeline
type Region struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// NewRegion validates and returns a loop region
func NewRegion(start, end float64) (Region, error) {
	r := Region{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// Validate checks end > start, a non-negative start and finite bounds
func (r Region) Validate() error {
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsInf(r.Start, 0) || math.IsInf(r.End, 0):
		return fmt.Errorf("%w: non-finite bounds", ErrInvalidRegion)
	case r.Start < 0:
		return fmt.Errorf("%w: start %.3f is negative", ErrInvalidRegion, r.Start)
	case r.End <= r.Start:
		return fmt.Errorf("%w: end %.3f <= start %.3f", ErrInvalidRegion, r.End, r.Start)
	}
	return nil
}

// Length returns End - Start
func (r Region) Length() float64 {
	return r.End - r.Start
}

// Contains reports whether t lies in [Start, End)
func (r Region) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

// Model is the clock state owned by the transport. All methods are pure;
// updates return a new Model so an anchor is always replaced whole.
type Model struct {
	Anchor Anchor
	Loop   *Region
}

// New returns a model anchored at hardware time hw with song time 0
func New(hw, rate float64) Model {
	return Model{Anchor: Anchor{HardwareTime: hw, Rate: rate}}
}

// Looping reports whether a loop region is active
func (m Model) Looping() bool {
	return m.Loop != nil
}

// Normalize folds a raw song time into the loop region. Times at or past
// the loop end wrap, times before the start clamp to the start. Without
// a loop it is the identity.
func (m Model) Normalize(raw float64) float64 {
	if m.Loop == nil {
		return raw
	}
	start, end := m.Loop.Start, m.Loop.End
	if raw >= end {
		return start + math.Mod(raw-start, end-start)
	}
	if raw < start {
		return start
	}
	return raw
}

// Raw returns the unfolded song time at hardware time hw
func (m Model) Raw(hw float64) float64 {
	a := m.Anchor
	return a.SongTime + (hw-a.HardwareTime)*a.Rate
}

// SongTimeAt returns the song time at hardware time hw
func (m Model) SongTimeAt(hw float64) float64 {
	return m.Normalize(m.Raw(hw))
}

// Reanchor returns a model anchored at (hw, song, rate)
func (m Model) Reanchor(hw, song, rate float64) Model {
	m.Anchor = Anchor{HardwareTime: hw, SongTime: song, Rate: rate}
	return m
}

// WithRate reanchors at hw keeping the song time computed under the old
// rate, so the timeline is continuous across the change
func (m Model) WithRate(hw, rate float64) Model {
	return m.Reanchor(hw, m.SongTimeAt(hw), rate)
}

// WithLoop returns a model with the loop region replaced. A nil region
// disables looping. The region is copied.
func (m Model) WithLoop(r *Region) Model {
	if r == nil {
		m.Loop = nil
		return m
	}
	cp := *r
	m.Loop = &cp
	return m
}

// Wrapped reports whether the raw time at hw has passed the loop end,
// meaning the anchor should be moved back into the region
func (m Model) Wrapped(hw float64) bool {
	return m.Loop != nil && m.Raw(hw) >= m.Loop.End
}
