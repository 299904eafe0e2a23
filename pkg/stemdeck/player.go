// ABOUTME: High-level Player API for synchronized stem playback
// ABOUTME: Wires asset loading, the mixer, the output device and the transport loop
package stemdeck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemdeck/stemdeck-go/pkg/asset"
	"github.com/stemdeck/stemdeck-go/pkg/audio/output"
	"github.com/stemdeck/stemdeck-go/pkg/clock"
	"github.com/stemdeck/stemdeck-go/pkg/graph"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"github.com/stemdeck/stemdeck-go/pkg/transport"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by Load when a newer Load replaced it
var ErrSuperseded = errors.New("load superseded by a newer one")

// PlayerConfig holds player configuration
type PlayerConfig struct {
	// SampleRate is the output sample rate (default: 48000)
	SampleRate int

	// Channels is the output channel count (default: 2)
	Channels int

	// Tick is the time update interval (default: 16ms)
	Tick time.Duration

	// Volume is the initial master volume in [0, 1] (default: 1)
	Volume float64

	// Fetcher retrieves raw asset bytes (default: http, https and file)
	Fetcher asset.Fetcher

	// Cache overrides the asset cache built from Fetcher
	Cache *asset.Cache

	// Host overrides the software mixer, for custom audio backends
	Host graph.Host

	// Output overrides the oto device
	Output output.Output

	// Headless renders nothing to a device; the caller drives the mixer
	Headless bool

	Logger *zap.Logger

	// OnTimeUpdate is called each tick while playing and on seek/pause
	OnTimeUpdate func(songTime float64)

	// OnPlayStateChange is called when playback starts or stops
	OnPlayStateChange func(playing bool)

	// OnLoadProgress is called with the resolved fraction during Load
	OnLoadProgress func(fraction float64)

	// OnError is called when a load fails
	OnError func(error)
}

// Player plays a set of stems on one shared timeline. Its methods are
// safe for concurrent use; callbacks run on the player's loop goroutine
// and must not call Player methods synchronously.
type Player struct {
	config PlayerConfig
	logger *zap.Logger

	loop   *transport.Loop
	ctrl   *transport.Controller
	cache  *asset.Cache
	loader *transport.Loader
	mixer  *output.Mixer
	out    output.Output

	mu         sync.Mutex
	loadID     uuid.UUID
	loadCancel context.CancelFunc
	closed     bool
}

// NewPlayer creates a player and opens its output device
func NewPlayer(config PlayerConfig) (*Player, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.Tick == 0 {
		config.Tick = transport.DefaultTick
	}
	if config.Volume == 0 {
		config.Volume = 1
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Fetcher == nil {
		config.Fetcher = asset.NewRouter(30 * time.Second)
	}

	p := &Player{
		config: config,
		logger: config.Logger,
		loop:   transport.NewLoop(config.Logger),
	}

	p.cache = config.Cache
	if p.cache == nil {
		p.cache = asset.NewCache(config.Fetcher, asset.WithLogger(config.Logger))
	}
	p.loader = transport.NewLoader(p.cache, config.Logger)

	host := config.Host
	if host == nil {
		p.mixer = output.NewMixer(config.SampleRate, config.Channels)
		host = p.mixer
	}

	if p.mixer != nil && !config.Headless {
		out := config.Output
		if out == nil {
			out = output.NewOto(0, config.Logger)
			p.mixer.SetInterpolate(true)
		}
		if err := out.Open(p.mixer, config.SampleRate, config.Channels); err != nil {
			p.loop.Close()
			return nil, fmt.Errorf("failed to open output: %w", err)
		}
		p.out = out
	}

	p.ctrl = transport.NewController(transport.Config{
		Host:      host,
		Scheduler: p.loop,
		Tick:      config.Tick,
		Logger:    config.Logger,
		Callbacks: transport.Callbacks{
			OnTimeUpdate:      config.OnTimeUpdate,
			OnPlayStateChange: config.OnPlayStateChange,
			OnLoadProgress:    config.OnLoadProgress,
			OnError:           config.OnError,
		},
	})
	p.ctrl.SetVolume(config.Volume)

	return p, nil
}

// Load resolves descriptors and installs them as the current track set.
// duration is the master track's length; zero takes it from the decoded
// master. A failed load keeps the previous track set playable and is
// reported through OnError and Status().LoadError. Starting a new Load
// cancels any load still in progress.
func (p *Player) Load(ctx context.Context, descs []stem.Descriptor, duration float64) error {
	id := uuid.New()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transport.ErrClosed
	}
	if p.loadCancel != nil {
		p.loadCancel()
	}
	p.loadID = id
	p.loadCancel = cancel
	p.mu.Unlock()

	p.logger.Info("loading track set",
		zap.String("load_id", id.String()),
		zap.Int("tracks", len(descs)))

	p.progress(0)
	ts, err := p.loader.Resolve(ctx, descs, duration, p.progress)

	var result error
	doErr := p.loop.Do(func() {
		if !p.current(id) {
			result = ErrSuperseded
			return
		}
		if err != nil {
			p.ctrl.FailLoad(err)
			result = err
			return
		}
		result = p.ctrl.Load(ts)
	})
	if doErr != nil {
		return doErr
	}

	p.mu.Lock()
	if p.loadID == id {
		p.loadCancel = nil
	}
	p.mu.Unlock()

	if result != nil && !errors.Is(result, ErrSuperseded) {
		p.logger.Warn("load failed", zap.String("load_id", id.String()), zap.Error(result))
	}
	return result
}

// Play starts playback from the current position
func (p *Player) Play() error {
	return p.do(p.ctrl.Play)
}

// Pause stops playback and keeps the position
func (p *Player) Pause() error {
	return p.do(p.ctrl.Pause)
}

// Toggle plays when paused and pauses when playing
func (p *Player) Toggle() error {
	return p.do(func() error {
		if p.ctrl.State() == transport.Playing {
			return p.ctrl.Pause()
		}
		return p.ctrl.Play()
	})
}

// Seek moves the playhead to t seconds
func (p *Player) Seek(t float64) error {
	return p.do(func() error { return p.ctrl.Seek(t) })
}

// SetRate changes the playback speed
func (p *Player) SetRate(rate float64) error {
	return p.do(func() error { return p.ctrl.SetRate(rate) })
}

// SetLoop loops playback between start and end seconds
func (p *Player) SetLoop(start, end float64) error {
	region, err := clock.NewRegion(start, end)
	if err != nil {
		return err
	}
	return p.do(func() error { return p.ctrl.SetLoop(&region) })
}

// ClearLoop disables looping
func (p *Player) ClearLoop() error {
	return p.do(func() error { return p.ctrl.SetLoop(nil) })
}

// Mute mutes or unmutes one stem
func (p *Player) Mute(key stem.ID, muted bool) error {
	return p.do(func() error { return p.ctrl.MuteTrack(key, muted) })
}

// SetTrackGain sets one stem's level in [0, 1]
func (p *Player) SetTrackGain(key stem.ID, v float64) error {
	return p.do(func() error { return p.ctrl.SetTrackGain(key, v) })
}

// SetVolume sets the master volume in [0, 1]
func (p *Player) SetVolume(v float64) error {
	return p.do(func() error {
		p.ctrl.SetVolume(v)
		return nil
	})
}

// Status returns a snapshot of the transport
func (p *Player) Status() transport.Status {
	var s transport.Status
	if err := p.loop.Do(func() { s = p.ctrl.Status() }); err != nil {
		return transport.Status{State: transport.Stopped}
	}
	return s
}

// Forget drops a cached asset so the next Load fetches it again
func (p *Player) Forget(url string) {
	p.cache.Forget(url)
}

// Mixer returns the software mixer, or nil when a custom host is used.
// Headless callers render through it to advance time.
func (p *Player) Mixer() *output.Mixer {
	return p.mixer
}

// Close stops playback and releases the device, the graph and any
// in-flight loads
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.loadCancel != nil {
		p.loadCancel()
	}
	p.mu.Unlock()

	p.loop.Do(p.ctrl.Close)
	p.loop.Close()
	p.cache.Close()

	var err error
	if p.out != nil {
		err = p.out.Close()
	}
	if p.mixer != nil {
		p.mixer.Close()
	}
	p.logger.Info("player closed")
	return err
}

func (p *Player) do(fn func() error) error {
	var err error
	if derr := p.loop.Do(func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

func (p *Player) current(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadID == id && !p.closed
}

// progress forwards load progress to the loop so callbacks stay on one
// goroutine
func (p *Player) progress(f float64) {
	p.loop.Post(func() { p.ctrl.Progress(f) })
}
