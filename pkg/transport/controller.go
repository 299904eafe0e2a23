// ABOUTME: Transport state machine driving every track from one clock
// ABOUTME: Starts, stops, seeks, loops and re-rates all sources in phase
package transport

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/stemdeck/stemdeck-go/pkg/clock"
	"github.com/stemdeck/stemdeck-go/pkg/graph"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"go.uber.org/zap"
)

// DefaultTick is the time reporting interval, about one display frame
const DefaultTick = 16 * time.Millisecond

// Callbacks receive transport events. They run on the loop goroutine
// and must not call back into the player synchronously.
type Callbacks struct {
	OnTimeUpdate      func(songTime float64)
	OnPlayStateChange func(playing bool)
	OnLoadProgress    func(fraction float64)
	OnError           func(err error)
}

// Config configures a Controller
type Config struct {
	Host      graph.Host
	Scheduler Scheduler
	Tick      time.Duration
	Callbacks Callbacks
	Logger    *zap.Logger
}

// Controller is the only component with playback side effects. It is
// not safe for concurrent use: every call must come from the goroutine
// that owns it, normally a Loop.
type Controller struct {
	host   graph.Host
	sched  Scheduler
	tick   time.Duration
	cb     Callbacks
	logger *zap.Logger

	tracks  *TrackSet
	graph   *graph.Graph
	sources [stem.Count]graph.Source

	model     clock.Model
	rate      float64
	pauseTime float64
	state     State
	volume    float64

	cancelTick func()
	notReady   bool
	loadErr    error
	closed     bool
}

// NewController creates a stopped controller with no tracks
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Controller{
		host:   cfg.Host,
		sched:  cfg.Scheduler,
		tick:   tick,
		cb:     cfg.Callbacks,
		logger: logger,
		model:  clock.New(cfg.Host.Now(), 1),
		rate:   1,
		volume: 1,
	}
}

// Load installs a resolved track set. The graph is rebuilt only when the
// set of stems changes. Loading while playing keeps the song position
// and restarts every source on the new buffers.
func (c *Controller) Load(ts *TrackSet) error {
	if c.closed {
		return ErrClosed
	}
	if ts == nil {
		return fmt.Errorf("%w: nil track set", ErrNoBuffer)
	}

	now := c.host.Now()
	wasPlaying := c.state == Playing
	position := c.songTimeAt(now)
	c.stopSources()

	keys := ts.Keys()
	if c.graph == nil || !c.graph.SameKeys(keys) {
		g, err := graph.New(c.host, keys, c.logger)
		if err != nil {
			c.fail(err)
			if wasPlaying {
				c.startSources(now, position)
			}
			return err
		}
		if c.graph != nil {
			c.graph.Close()
		}
		g.SetMasterGain(c.volume)
		c.graph = g
	}

	c.tracks = ts
	c.loadErr = nil
	c.notReady = false

	if r := c.model.Loop; r != nil && r.End > ts.Duration() {
		c.logger.Info("loop region dropped, past end of new track set",
			zap.Float64("end", r.End), zap.Float64("duration", ts.Duration()))
		c.model = c.model.WithLoop(nil)
	}
	if position >= ts.Duration() {
		position = 0
	}

	c.logger.Info("track set loaded",
		zap.Int("tracks", ts.Len()),
		zap.Float64("duration", ts.Duration()))

	if wasPlaying {
		offset := c.offsetFor(position)
		c.startSources(now, offset)
		c.model = c.model.Reanchor(now, offset, c.rate)
		return nil
	}
	c.pauseTime = position
	c.model = c.model.Reanchor(now, position, c.rate)
	return nil
}

// FailLoad records a failed load. The current track set stays intact.
func (c *Controller) FailLoad(err error) {
	if err == nil {
		return
	}
	c.fail(err)
}

// Progress reports load progress through OnLoadProgress
func (c *Controller) Progress(fraction float64) {
	if c.cb.OnLoadProgress != nil {
		c.cb.OnLoadProgress(fraction)
	}
}

// Play starts every track at the same hardware instant and offset
func (c *Controller) Play() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.state == Playing {
		return nil
	}

	offset := c.offsetFor(c.pauseTime)
	now := c.host.Now()
	c.startSources(now, offset)
	c.model = c.model.Reanchor(now, offset, c.rate)
	c.pauseTime = offset
	c.setState(Playing)
	c.startTicker()

	c.logger.Debug("playback started", zap.Float64("offset", offset), zap.Float64("rate", c.rate))
	return nil
}

// Pause stops every source and keeps the current song time
func (c *Controller) Pause() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.state != Playing {
		return nil
	}

	now := c.host.Now()
	t := c.model.SongTimeAt(now)
	if !c.model.Looping() && t >= c.tracks.Duration() {
		// the end passed between ticks
		c.finish(now)
		return nil
	}
	c.stopSources()
	c.stopTicker()
	c.pauseTime = t
	c.model = c.model.Reanchor(now, t, c.rate)
	c.setState(Paused)
	c.emitTime(t)

	c.logger.Debug("playback paused", zap.Float64("song_time", t))
	return nil
}

// Seek moves the playhead to t. Negative times clamp to zero and times
// at or past the end are treated as zero. While playing every source is
// restarted at the new offset.
func (c *Controller) Seek(t float64) error {
	if err := c.ready(); err != nil {
		return err
	}
	if math.IsNaN(t) || t < 0 || t >= c.tracks.Duration() {
		t = 0
	}

	now := c.host.Now()
	c.pauseTime = t
	if c.state == Playing {
		offset := c.offsetFor(t)
		c.stopSources()
		c.startSources(now, offset)
		t = offset
	}
	c.model = c.model.Reanchor(now, t, c.rate)
	c.emitTime(t)
	return nil
}

// SetRate changes the playback rate. The song time reached under the old
// rate becomes the new anchor and every source switches at the same
// hardware instant.
func (c *Controller) SetRate(r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, r)
	}
	if err := c.ready(); err != nil {
		return err
	}

	now := c.host.Now()
	if c.state == Playing {
		c.model = c.model.WithRate(now, r)
	} else {
		c.model = c.model.Reanchor(now, c.pauseTime, r)
	}
	c.rate = r
	for _, src := range c.sources {
		if src != nil {
			src.SetRate(r, now)
		}
	}
	return nil
}

// SetLoop sets or clears (nil) the loop region. Invalid regions and
// regions ending past the track set are rejected and the previous region
// is kept. When playing from outside the new region every source
// restarts at its start.
func (c *Controller) SetLoop(r *clock.Region) error {
	if err := c.ready(); err != nil {
		return err
	}
	if r != nil {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.End > c.tracks.Duration() {
			return fmt.Errorf("%w: end %.3f past duration %.3f",
				clock.ErrInvalidRegion, r.End, c.tracks.Duration())
		}
	}

	now := c.host.Now()
	if c.state != Playing {
		c.model = c.model.WithLoop(r)
		return nil
	}

	current := c.model.SongTimeAt(now)
	c.model = c.model.WithLoop(r)

	if r != nil && !r.Contains(current) {
		c.stopSources()
		c.startSources(now, r.Start)
		c.model = c.model.Reanchor(now, r.Start, c.rate)
		c.emitTime(r.Start)
		return nil
	}

	c.model = c.model.Reanchor(now, current, c.rate)
	for _, src := range c.sources {
		if src == nil {
			continue
		}
		if r == nil {
			src.SetLoop(false, 0, 0)
		} else {
			src.SetLoop(true, r.Start, r.End)
		}
	}
	return nil
}

// MuteTrack mutes or unmutes one track
func (c *Controller) MuteTrack(key stem.ID, muted bool) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.graph.Mute(key, muted); err != nil {
		if errors.Is(err, graph.ErrNoTrack) {
			return fmt.Errorf("%w: %s", ErrUnknownTrack, key)
		}
		return err
	}
	return nil
}

// SetTrackGain sets one track's level in [0, 1]
func (c *Controller) SetTrackGain(key stem.ID, v float64) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.graph.SetGain(key, v); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, key)
	}
	return nil
}

// SetVolume sets the master volume. It is kept across loads.
func (c *Controller) SetVolume(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	c.volume = v
	if c.graph != nil {
		c.graph.SetMasterGain(v)
	}
}

// SongTime returns the current song time
func (c *Controller) SongTime() float64 {
	return c.songTimeAt(c.host.Now())
}

// State returns the transport state
func (c *Controller) State() State {
	return c.state
}

// Ready reports whether a track set is loaded
func (c *Controller) Ready() bool {
	return c.tracks != nil && !c.closed
}

// Status returns a snapshot of the transport
func (c *Controller) Status() Status {
	s := Status{
		State:     c.state,
		SongTime:  c.SongTime(),
		Rate:      c.rate,
		Volume:    c.volume,
		Ready:     c.Ready(),
		NotReady:  c.notReady,
		LoadError: c.loadErr,
	}
	if c.model.Loop != nil {
		r := *c.model.Loop
		s.Loop = &r
	}
	if c.tracks != nil {
		s.Duration = c.tracks.Duration()
		s.Tracks = c.tracks.Keys()
	}
	if c.graph != nil {
		for _, key := range c.graph.Keys() {
			if c.graph.Muted(key) {
				s.Muted = append(s.Muted, key)
			}
		}
	}
	return s
}

// Close stops playback, cancels the tick and releases the graph
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.stopSources()
	c.stopTicker()
	if c.graph != nil {
		c.graph.Close()
		c.graph = nil
	}
	c.tracks = nil
	c.state = Stopped
	c.closed = true
}

// Tick reports the song time and handles loop wraps and the end of the
// track. The scheduler calls it while playing.
func (c *Controller) Tick() {
	if c.state != Playing {
		return
	}

	now := c.host.Now()
	if c.model.Looping() {
		if c.model.Wrapped(now) {
			c.model = c.model.Reanchor(now, c.model.SongTimeAt(now), c.rate)
		}
		c.emitTime(c.model.SongTimeAt(now))
		return
	}

	t := c.model.SongTimeAt(now)
	if t >= c.tracks.Duration() {
		c.finish(now)
		return
	}
	c.emitTime(t)
}

func (c *Controller) finish(now float64) {
	c.stopSources()
	c.stopTicker()
	c.pauseTime = 0
	c.model = c.model.Reanchor(now, 0, c.rate)
	c.logger.Debug("reached end of track")
	c.emitTime(0)
	c.setState(Stopped)
}

func (c *Controller) ready() error {
	if c.closed {
		return ErrClosed
	}
	if c.tracks == nil {
		c.notReady = true
		return ErrNotReady
	}
	return nil
}

// offsetFor maps a stored position to a start offset: folded into the
// loop, and zero when it lies past the end.
func (c *Controller) offsetFor(t float64) float64 {
	if t < 0 || t >= c.tracks.Duration() {
		t = 0
	}
	return c.model.Normalize(t)
}

func (c *Controller) songTimeAt(now float64) float64 {
	if c.state != Playing {
		return c.pauseTime
	}
	t := c.model.SongTimeAt(now)
	if c.tracks != nil && t > c.tracks.Duration() {
		t = c.tracks.Duration()
	}
	return t
}

// startSources creates one source per track, all scheduled for the same
// hardware instant and offset
func (c *Controller) startSources(when, offset float64) {
	for _, key := range c.tracks.Keys() {
		if c.sources[key] != nil {
			c.sources[key].Stop()
			c.sources[key] = nil
		}

		track, _ := c.tracks.Track(key)
		input, ok := c.graph.Input(key)
		if !ok {
			continue
		}

		src := c.host.NewSource(track.Buffer)
		if err := src.Connect(input); err != nil {
			c.logger.Warn("failed to connect source", zap.Stringer("track", key), zap.Error(err))
			continue
		}
		src.SetRate(c.rate, when)
		if r := c.model.Loop; r != nil {
			src.SetLoop(true, r.Start, r.End)
		}
		if err := src.Start(when, offset); err != nil {
			c.logger.Warn("failed to start source", zap.Stringer("track", key), zap.Error(err))
			src.Disconnect()
			continue
		}
		c.sources[key] = src
	}
}

// stopSources stops and drops every live source
func (c *Controller) stopSources() {
	for i, src := range c.sources {
		if src != nil {
			src.Stop()
			src.Disconnect()
			c.sources[i] = nil
		}
	}
}

func (c *Controller) startTicker() {
	c.stopTicker()
	if c.sched == nil {
		return
	}
	c.cancelTick = c.sched.Every(c.tick, c.Tick)
}

func (c *Controller) stopTicker() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	wasPlaying := c.state == Playing
	c.state = s
	if playing := s == Playing; playing != wasPlaying && c.cb.OnPlayStateChange != nil {
		c.cb.OnPlayStateChange(playing)
	}
}

func (c *Controller) emitTime(t float64) {
	if c.cb.OnTimeUpdate != nil {
		c.cb.OnTimeUpdate(t)
	}
}

func (c *Controller) fail(err error) {
	c.loadErr = err
	c.logger.Warn("load failed", zap.Error(err))
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}
