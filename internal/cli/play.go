// ABOUTME: play command: loads a song's stems and runs the player
// ABOUTME: Wires the TUI, the time stream, mDNS and the file watcher
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemdeck/stemdeck-go/internal/config"
	"github.com/stemdeck/stemdeck-go/internal/discovery"
	"github.com/stemdeck/stemdeck-go/internal/timestream"
	"github.com/stemdeck/stemdeck-go/internal/ui"
	"github.com/stemdeck/stemdeck-go/internal/watch"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"github.com/stemdeck/stemdeck-go/pkg/stemdeck"
	"github.com/stemdeck/stemdeck-go/pkg/transport"
	"go.uber.org/zap"
)

type playOptions struct {
	session string
	tracks  trackFlags
	rate    float64
	volume  float64
	loop    string
	start   float64
	noTUI   bool
	noCache bool
	watch   bool
	remote  string
	paused  bool
}

func newPlayCmd(a *app) *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play [session.yaml]",
		Short: "Play a song and its stems in sync",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.session = args[0]
			}
			a.quiet = !opts.noTUI
			if err := a.setup(os.Stderr); err != nil {
				return err
			}
			return runPlay(cmd.Context(), a, opts, cmd.Flags().Changed)
		},
	}

	f := cmd.Flags()
	for _, id := range stem.All() {
		f.StringVar(&opts.tracks[id], id.String(), "", fmt.Sprintf("URL or path of the %s track", id))
	}
	f.Float64Var(&opts.rate, "rate", 1, "Playback rate")
	f.Float64Var(&opts.volume, "volume", 1, "Master volume in [0, 1]")
	f.StringVar(&opts.loop, "loop", "", "Loop region as start:end seconds")
	f.Float64Var(&opts.start, "start", 0, "Start position in seconds")
	f.BoolVar(&opts.noTUI, "no-tui", false, "Disable the TUI and log to the console")
	f.BoolVar(&opts.noCache, "no-cache", false, "Skip the download cache")
	f.BoolVar(&opts.watch, "watch", false, "Reload local stems when they change on disk")
	f.StringVar(&opts.remote, "remote", "", "Serve the time stream on this address (overrides STEMDECK_REMOTE_ADDR)")
	f.BoolVar(&opts.paused, "paused", false, "Load without starting playback")

	return cmd
}

// events fans player callbacks out to whichever surfaces are running
type events struct {
	mu      sync.RWMutex
	tui     *ui.TUI
	stream  *timestream.Server
	stopped chan struct{}
	logger  *zap.Logger
}

func (e *events) attach(tui *ui.TUI, stream *timestream.Server) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tui = tui
	e.stream = stream
}

func (e *events) surfaces() (*ui.TUI, *timestream.Server) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tui, e.stream
}

func (e *events) time(t float64) {
	tui, stream := e.surfaces()
	if tui != nil {
		tui.Time(t)
	}
	if stream != nil {
		stream.PublishTime(t)
	}
}

func (e *events) playState(playing bool) {
	tui, stream := e.surfaces()
	if stream != nil {
		stream.PublishPlayState(playing)
	}
	if tui == nil {
		e.logger.Info("play state changed", zap.Bool("playing", playing))
	}
	if !playing {
		select {
		case e.stopped <- struct{}{}:
		default:
		}
	}
}

func (e *events) progress(f float64) {
	tui, stream := e.surfaces()
	if tui != nil {
		tui.Progress(f)
	}
	if stream != nil {
		stream.PublishProgress(f)
	}
}

func (e *events) fail(err error) {
	tui, stream := e.surfaces()
	if tui != nil {
		tui.Error(err)
	}
	if stream != nil {
		stream.PublishError(err)
	}
	e.logger.Error("player error", zap.Error(err))
}

// startFailed reports an error from startSession
func (e *events) startFailed(err error) {
	if err == nil || errors.Is(err, stemdeck.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	e.fail(err)
}

// sessionControls is the part of the player startSession drives
type sessionControls interface {
	SetRate(rate float64) error
	SetLoop(start, end float64) error
	Seek(t float64) error
	Play() error
}

func runPlay(parent context.Context, a *app, opts *playOptions, changed func(string) bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := buildSession(opts.session, &opts.tracks)
	if err != nil {
		return err
	}
	if err := applyPlayFlags(session, opts, changed); err != nil {
		return err
	}

	fetcher, err := buildFetcher(a.cfg, !opts.noCache, a.logger)
	if err != nil {
		return err
	}

	ev := &events{stopped: make(chan struct{}, 1), logger: a.logger}
	volume := 1.0
	if session.Volume != nil {
		volume = *session.Volume
	}

	player, err := stemdeck.NewPlayer(stemdeck.PlayerConfig{
		SampleRate:        a.cfg.SampleRate,
		Channels:          a.cfg.Channels,
		Tick:              a.cfg.Tick,
		Fetcher:           fetcher,
		Logger:            a.logger,
		OnTimeUpdate:      ev.time,
		OnPlayStateChange: ev.playState,
		OnLoadProgress:    ev.progress,
		OnError:           ev.fail,
	})
	if err != nil {
		return err
	}
	defer player.Close()
	// A zero volume in PlayerConfig means the default, so set it directly
	if err := player.SetVolume(volume); err != nil {
		return err
	}

	var tui *ui.TUI
	if !opts.noTUI {
		tui = ui.New(player, session.Title)
	}

	stream, err := startStream(a, opts, session.Title, player)
	if err != nil {
		return err
	}
	if stream != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			stream.Stop(shutdownCtx)
		}()
		if a.cfg.Advertise {
			adv, err := discovery.Advertise(discovery.Config{
				Instance: session.Title,
				Port:     stream.Port(),
				Path:     "/ws",
				Logger:   a.logger,
			})
			if err != nil {
				a.logger.Warn("mdns advertisement failed", zap.Error(err))
			} else {
				defer adv.Stop()
			}
		}
	}
	ev.attach(tui, stream)

	loadErr := make(chan error, 1)
	go func() {
		// load failures reach OnError on their own
		if err := player.Load(ctx, session.Tracks, session.Duration); err != nil {
			loadErr <- err
			return
		}
		err := startSession(player, session, opts)
		if tui != nil {
			// nothing reads loadErr once the TUI owns the terminal
			ev.startFailed(err)
		}
		loadErr <- err
	}()

	if opts.watch {
		w, err := watchSession(ctx, player, session, a.logger)
		if err != nil {
			a.logger.Warn("file watching disabled", zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	if tui != nil {
		go func() {
			<-ctx.Done()
			tui.Quit()
		}()
		return tui.Run()
	}

	if err := <-loadErr; err != nil {
		return err
	}
	if opts.paused {
		<-ctx.Done()
		return nil
	}
	// Pauses from remote clients also report playing=false; only the
	// end of the song stops the transport.
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ev.stopped:
			if player.Status().State == transport.Stopped {
				a.logger.Info("playback finished")
				return nil
			}
		}
	}
}

// applyPlayFlags copies explicitly set flags over the session's settings
func applyPlayFlags(s *config.Session, opts *playOptions, changed func(string) bool) error {
	if changed("rate") || s.Rate == 0 {
		s.Rate = opts.rate
	}
	if changed("volume") {
		v := opts.volume
		s.Volume = &v
	}
	if opts.loop != "" {
		region, err := parseLoop(opts.loop)
		if err != nil {
			return err
		}
		s.Loop = region
	}
	return s.Validate()
}

func startStream(a *app, opts *playOptions, name string, player *stemdeck.Player) (*timestream.Server, error) {
	addr := a.cfg.RemoteAddr
	if opts.remote != "" {
		addr = opts.remote
	}
	if addr == "" {
		return nil, nil
	}
	s := timestream.New(timestream.Config{
		Addr:     addr,
		Name:     name,
		Controls: player,
		Logger:   a.logger,
	})
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// startSession applies the session's rate, loop and start position to a
// loaded player and starts it unless paused
func startSession(p sessionControls, s *config.Session, opts *playOptions) error {
	if err := p.SetRate(s.Rate); err != nil {
		return err
	}
	if s.Loop != nil {
		if err := p.SetLoop(s.Loop.Start, s.Loop.End); err != nil {
			return err
		}
	}
	if opts.start > 0 {
		if err := p.Seek(opts.start); err != nil {
			return err
		}
	}
	if opts.paused {
		return nil
	}
	return p.Play()
}

// watchSession reloads the session when one of its local files changes.
// Reloads keep the playhead since the track keys do not change.
func watchSession(ctx context.Context, p *stemdeck.Player, s *config.Session, logger *zap.Logger) (*watch.Watcher, error) {
	byPath := urlsByPath(s.Tracks)
	if len(byPath) == 0 {
		return nil, errors.New("session has no local tracks")
	}
	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}

	return watch.New(paths, watch.DefaultDebounce, func(changed []string) {
		for _, path := range changed {
			if url, ok := byPath[path]; ok {
				p.Forget(url)
			}
		}
		if err := p.Load(ctx, s.Tracks, s.Duration); err != nil && !errors.Is(err, stemdeck.ErrSuperseded) {
			logger.Warn("reload failed", zap.Error(err))
		}
	}, logger)
}
