// ABOUTME: Resolves track descriptors into a track set
// ABOUTME: Fetches every stem concurrently and fails the load as a whole
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver returns the decoded buffer for a URL
type Resolver interface {
	Get(ctx context.Context, url string) (*audio.Buffer, error)
}

// Loader turns descriptors into a TrackSet through a Resolver
type Loader struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewLoader creates a loader backed by r
func NewLoader(r Resolver, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{resolver: r, logger: logger}
}

// Resolve fetches and decodes every descriptor concurrently. If any
// track fails the whole load fails and no track set is returned.
// progress, when set, is called with the resolved fraction after each
// track; it may be called from several goroutines but never concurrently.
func (l *Loader) Resolve(ctx context.Context, descs []stem.Descriptor, duration float64, progress func(float64)) (*TrackSet, error) {
	if err := stem.ValidateSet(descs); err != nil {
		return nil, err
	}

	tracks := make([]Track, len(descs))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range descs {
		g.Go(func() error {
			buf, err := l.resolver.Get(gctx, d.URL)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", d.Key, err)
			}
			tracks[i] = Track{Key: d.Key, URL: d.URL, Buffer: buf}

			mu.Lock()
			done++
			if progress != nil {
				progress(float64(done) / float64(len(descs)))
			}
			mu.Unlock()

			l.logger.Debug("track resolved", zap.Stringer("track", d.Key), zap.String("url", d.URL))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewTrackSet(duration, tracks...)
}
