// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams mixer output to the system device through one persistent oto player
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// oto allows a single context per process
var (
	sharedMu       sync.Mutex
	sharedCtx      *oto.Context
	sharedRate     int
	sharedChannels int
)

// Oto output implementation using oto library
type Oto struct {
	player     *oto.Player
	bufferSize time.Duration
	logger     *zap.Logger
	ready      bool
}

// NewOto creates a new Oto output. bufferSize is the device buffer
// length; zero lets oto pick.
func NewOto(bufferSize time.Duration, logger *zap.Logger) *Oto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oto{
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Open initializes the output device and starts pulling from src
func (o *Oto) Open(src io.Reader, sampleRate, channels int) error {
	if o.ready {
		return fmt.Errorf("output already open")
	}

	ctx, err := sharedContext(sampleRate, channels, o.bufferSize, o.logger)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	o.player = ctx.NewPlayer(src)
	o.player.Play()
	o.ready = true

	o.logger.Info("audio output initialized",
		zap.Int("sample_rate", sampleRate),
		zap.Int("channels", channels))
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	if !o.ready {
		return nil
	}
	o.ready = false

	err := o.player.Close()
	o.player = nil

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedCtx != nil {
		if serr := sharedCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func sharedContext(sampleRate, channels int, bufferSize time.Duration, logger *zap.Logger) (*oto.Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedCtx != nil {
		if sharedRate != sampleRate || sharedChannels != channels {
			// oto cannot be reinitialised; keep the first format
			logger.Warn("format change ignored, reusing existing oto context",
				zap.Int("current_rate", sharedRate),
				zap.Int("requested_rate", sampleRate))
		}
		return sharedCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	sharedCtx = ctx
	sharedRate = sampleRate
	sharedChannels = channels
	return ctx, nil
}
