// ABOUTME: Memoised URL to decoded buffer cache
// ABOUTME: Concurrent requests for one URL share a single fetch and decode
package asset

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
	"github.com/stemdeck/stemdeck-go/pkg/audio/decode"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache resolves URLs to decoded buffers. Each URL maps to exactly one
// buffer: concurrent Gets for an unresolved URL join the same in-flight
// fetch and decode and all receive the same pointer. Failures are not
// cached and never retried by the cache itself.
type Cache struct {
	fetcher Fetcher
	decode  decode.Func
	logger  *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*audio.Buffer
	epoch   uint64            // bumped by Clear
	gens    map[string]uint64 // bumped per url by Forget
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc

	decodes atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithDecoder replaces the sniffing decoder
func WithDecoder(fn decode.Func) Option {
	return func(c *Cache) { c.decode = fn }
}

// WithLogger sets the cache logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCache creates a cache resolving raw bytes through fetcher
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fetcher: fetcher,
		decode:  decode.Decode,
		logger:  zap.NewNop(),
		entries: make(map[string]*audio.Buffer),
		gens:    make(map[string]uint64),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the decoded buffer for url. ctx bounds only this caller's
// wait; the shared work continues for other callers until Close.
func (c *Cache) Get(ctx context.Context, url string) (*audio.Buffer, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if buf, ok := c.entries[url]; ok {
		c.mu.Unlock()
		return buf, nil
	}
	key := c.flightKeyLocked(url)
	c.mu.Unlock()

	// Flights are keyed by generation so a Get after Forget or Clear
	// never joins a flight whose result will not be stored.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.load(url, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*audio.Buffer), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) flightKeyLocked(url string) string {
	return fmt.Sprintf("%d/%d/%s", c.epoch, c.gens[url], url)
}

func (c *Cache) load(url, key string) (*audio.Buffer, error) {
	// A flight that finished between the caller's lookup and DoChan
	// has already stored the buffer.
	c.mu.Lock()
	if buf, ok := c.entries[url]; ok {
		c.mu.Unlock()
		return buf, nil
	}
	c.mu.Unlock()

	c.logger.Debug("fetching asset", zap.String("url", url))

	data, err := c.fetcher.Fetch(c.ctx, url)
	if err != nil {
		c.logger.Warn("asset fetch failed", zap.String("url", url), zap.Error(err))
		return nil, &FetchError{URL: url, Err: err}
	}

	if err := c.ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	c.decodes.Add(1)
	buf, err := c.decode(data)
	if err != nil {
		c.logger.Warn("asset decode failed", zap.String("url", url), zap.Error(err))
		return nil, &DecodeError{URL: url, Err: err}
	}

	c.mu.Lock()
	// Entries invalidated by Clear, Forget or Close while in flight are
	// returned to their waiters but not stored.
	if !c.closed && c.flightKeyLocked(url) == key {
		c.entries[url] = buf
	}
	c.mu.Unlock()

	c.logger.Info("asset decoded",
		zap.String("url", url),
		zap.Int("sample_rate", buf.Format.SampleRate),
		zap.Int("channels", buf.Format.Channels),
		zap.Float64("duration", buf.Duration()))
	return buf, nil
}

// Has reports whether url is resolved
func (c *Cache) Has(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	return ok
}

// Len returns the number of resolved buffers
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Decodes returns how many decodes the cache has run
func (c *Cache) Decodes() int64 {
	return c.decodes.Load()
}

// Forget drops url so the next Get fetches it again
func (c *Cache) Forget(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.gens[url]++
	c.mu.Unlock()
}

// Clear drops every resolved buffer
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*audio.Buffer)
	c.gens = make(map[string]uint64)
	c.epoch++
	c.mu.Unlock()
}

// Close aborts in-flight fetches and releases every buffer
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.entries = nil
	c.mu.Unlock()

	c.cancel()
	return nil
}
