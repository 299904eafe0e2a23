// ABOUTME: Playback graph of per-stem gains feeding one master output
// ABOUTME: Applies volume and mute without touching running sources
package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"go.uber.org/zap"
)

// ErrNoTrack is returned for a stem that is not part of the graph
var ErrNoTrack = errors.New("track not in graph")

type channel struct {
	gain  Gain
	level float64
	muted bool
}

// Graph owns the gain topology for one track set. It is rebuilt only
// when the set of stems changes.
type Graph struct {
	host   Host
	master Gain
	volume float64
	tracks [stem.Count]*channel
	logger *zap.Logger
}

// New builds master -> destination plus one gain per key -> master.
// With stems present the full mix starts muted so the song is not
// heard twice.
func New(host Host, keys []stem.ID, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("graph needs at least one track")
	}

	g := &Graph{
		host:   host,
		master: host.NewGain(),
		volume: 1,
		logger: logger,
	}
	if err := g.master.Connect(host.Destination()); err != nil {
		return nil, fmt.Errorf("failed to connect master: %w", err)
	}

	for _, key := range keys {
		if !key.Valid() {
			g.Close()
			return nil, fmt.Errorf("%w: %d", stem.ErrUnknown, int(key))
		}
		ch := &channel{gain: host.NewGain(), level: 1}
		if err := ch.gain.Connect(g.master); err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to connect %s: %w", key, err)
		}
		g.tracks[key] = ch
	}

	if g.hasStems() && g.tracks[stem.Master] != nil {
		g.tracks[stem.Master].muted = true
		g.apply(stem.Master)
	}

	logger.Debug("playback graph built", zap.Int("tracks", len(keys)), zap.Bool("stems", g.hasStems()))
	return g, nil
}

// Input returns the gain node sources for key connect to
func (g *Graph) Input(key stem.ID) (Gain, bool) {
	ch := g.channel(key)
	if ch == nil {
		return nil, false
	}
	return ch.gain, true
}

// Has reports whether key is part of the graph
func (g *Graph) Has(key stem.ID) bool {
	return g.channel(key) != nil
}

// Keys returns the tracks in registry order
func (g *Graph) Keys() []stem.ID {
	keys := make([]stem.ID, 0, stem.Count)
	for _, id := range stem.All() {
		if g.tracks[id] != nil {
			keys = append(keys, id)
		}
	}
	return keys
}

// SameKeys reports whether the graph was built for exactly keys
func (g *Graph) SameKeys(keys []stem.ID) bool {
	var want [stem.Count]bool
	for _, k := range keys {
		if k.Valid() {
			want[k] = true
		}
	}
	for i := range g.tracks {
		if (g.tracks[i] != nil) != want[i] {
			return false
		}
	}
	return true
}

// SetGain sets a track's level in [0, 1]. A muted track keeps the new
// level for when it is unmuted.
func (g *Graph) SetGain(key stem.ID, v float64) error {
	ch := g.channel(key)
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrNoTrack, key)
	}
	ch.level = clamp01(v)
	g.apply(key)
	return nil
}

// SetMasterGain sets the output volume in [0, 1]
func (g *Graph) SetMasterGain(v float64) {
	g.volume = clamp01(v)
	g.master.SetGain(g.volume)
}

// MasterGain returns the output volume
func (g *Graph) MasterGain() float64 {
	return g.volume
}

// Mute mutes or unmutes one track. Muting only ever touches key.
// Unmuting follows the exclusive full-mix rule: when stems are present,
// unmuting the master mutes every stem and unmuting a stem mutes the
// master, so the mix and the stems never sound together.
func (g *Graph) Mute(key stem.ID, muted bool) error {
	ch := g.channel(key)
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrNoTrack, key)
	}

	ch.muted = muted
	g.apply(key)

	if muted || !g.hasStems() {
		return nil
	}

	if key.IsMaster() {
		for _, id := range stem.All()[1:] {
			if other := g.tracks[id]; other != nil && !other.muted {
				other.muted = true
				g.apply(id)
			}
		}
	} else if m := g.tracks[stem.Master]; m != nil && !m.muted {
		m.muted = true
		g.apply(stem.Master)
	}

	g.logger.Debug("track unmuted", zap.Stringer("track", key))
	return nil
}

// Muted reports whether key is muted
func (g *Graph) Muted(key stem.ID) bool {
	ch := g.channel(key)
	return ch != nil && ch.muted
}

// Level returns the level of key, ignoring mute
func (g *Graph) Level(key stem.ID) float64 {
	ch := g.channel(key)
	if ch == nil {
		return 0
	}
	return ch.level
}

// EffectiveGain returns the gain currently applied to key's node
func (g *Graph) EffectiveGain(key stem.ID) float64 {
	ch := g.channel(key)
	if ch == nil || ch.muted {
		return 0
	}
	return ch.level
}

// Close disconnects every node from the host
func (g *Graph) Close() {
	for i, ch := range g.tracks {
		if ch != nil {
			ch.gain.Disconnect()
			g.tracks[i] = nil
		}
	}
	g.master.Disconnect()
}

func (g *Graph) channel(key stem.ID) *channel {
	if !key.Valid() {
		return nil
	}
	return g.tracks[key]
}

func (g *Graph) hasStems() bool {
	for _, id := range stem.All()[1:] {
		if g.tracks[id] != nil {
			return true
		}
	}
	return false
}

func (g *Graph) apply(key stem.ID) {
	g.tracks[key].gain.SetGain(g.EffectiveGain(key))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
