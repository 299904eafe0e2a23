// ABOUTME: Tests for the asset cache
// ABOUTME: Tests dedup of concurrent loads, error types and teardown
package asset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
)

func fakeDecode(data []byte) (*audio.Buffer, error) {
	if string(data) == "corrupt" {
		return nil, errors.New("bad header")
	}
	return &audio.Buffer{
		Format:  audio.Format{SampleRate: 1000, Channels: 1, BitDepth: 24},
		Samples: make([]int32, len(data)),
	}, nil
}

// gatedFetcher blocks every fetch until release is closed
type gatedFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	data    []byte
	err     error
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.data, f.err
}

func released() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestGetCaches(t *testing.T) {
	f := &gatedFetcher{release: released(), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))

	first, err := c.Get(context.Background(), "http://x/a.wav")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := c.Get(context.Background(), "http://x/a.wav")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if first != second {
		t.Error("expected identical buffer")
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls.Load())
	}
	if !c.Has("http://x/a.wav") || c.Len() != 1 {
		t.Error("expected cached entry")
	}
}

func TestConcurrentGetsShareOneDecode(t *testing.T) {
	f := &gatedFetcher{release: make(chan struct{}), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))

	const n = 16
	results := make([]*audio.Buffer, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "http://x/song.wav")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different buffer", i)
		}
	}
	if c.Decodes() != 1 {
		t.Errorf("expected exactly one decode, got %d", c.Decodes())
	}
}

func TestFetchError(t *testing.T) {
	f := &gatedFetcher{release: released(), err: errors.New("connection refused")}
	c := NewCache(f, WithDecoder(fakeDecode))

	_, err := c.Get(context.Background(), "http://x/a.wav")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.URL != "http://x/a.wav" {
		t.Errorf("unexpected url %q", fe.URL)
	}
	if c.Has("http://x/a.wav") {
		t.Error("failures must not be cached")
	}
	if c.Decodes() != 0 {
		t.Error("decode should not run after a failed fetch")
	}
}

func TestDecodeError(t *testing.T) {
	f := &gatedFetcher{release: released(), data: []byte("corrupt")}
	c := NewCache(f, WithDecoder(fakeDecode))

	_, err := c.Get(context.Background(), "http://x/a.wav")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		t.Error("decode failure should not be a fetch error")
	}
}

func TestCallerContextOnlyStopsWaiting(t *testing.T) {
	f := &gatedFetcher{release: make(chan struct{}), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "http://x/a.wav")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(f.release)
	buf, err := c.Get(context.Background(), "http://x/a.wav")
	if err != nil || buf == nil {
		t.Fatalf("shared load should complete: %v", err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected the original fetch to be reused, got %d fetches", f.calls.Load())
	}
}

func TestCloseAbortsInFlight(t *testing.T) {
	f := &gatedFetcher{release: make(chan struct{}), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "http://x/a.wav")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight load was not aborted")
	}

	if _, err := c.Get(context.Background(), "http://x/a.wav"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestForgetAndClear(t *testing.T) {
	f := &gatedFetcher{release: released(), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))
	ctx := context.Background()

	first, _ := c.Get(ctx, "a")
	c.Get(ctx, "b")

	c.Forget("a")
	if c.Has("a") || !c.Has("b") {
		t.Error("forget should drop only its url")
	}
	again, _ := c.Get(ctx, "a")
	if again == first {
		t.Error("forgotten url should be decoded again")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

// waitCalls blocks until the fetcher has been entered n times
func waitCalls(t *testing.T, f *gatedFetcher, n int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d fetches, got %d", n, f.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClearDetachesInFlightLoads(t *testing.T) {
	f := &gatedFetcher{release: make(chan struct{}), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))
	ctx := context.Background()

	stale := make(chan *audio.Buffer, 1)
	go func() {
		buf, _ := c.Get(ctx, "a")
		stale <- buf
	}()
	waitCalls(t, f, 1)

	c.Clear()

	fresh := make(chan *audio.Buffer, 1)
	go func() {
		buf, _ := c.Get(ctx, "a")
		fresh <- buf
	}()
	waitCalls(t, f, 2)
	close(f.release)

	<-stale
	b := <-fresh
	d, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if b == nil || b != d {
		t.Error("gets after Clear should share one buffer")
	}
	if c.Decodes() != 2 {
		t.Errorf("expected 2 decodes, got %d", c.Decodes())
	}
}

func TestForgetKeepsOtherFlights(t *testing.T) {
	f := &gatedFetcher{release: make(chan struct{}), data: []byte("abcd")}
	c := NewCache(f, WithDecoder(fakeDecode))
	ctx := context.Background()

	first := make(chan *audio.Buffer, 1)
	go func() {
		buf, _ := c.Get(ctx, "x")
		first <- buf
	}()
	waitCalls(t, f, 1)

	c.Forget("y")

	second := make(chan *audio.Buffer, 1)
	go func() {
		buf, _ := c.Get(ctx, "x")
		second <- buf
	}()
	time.Sleep(20 * time.Millisecond)
	close(f.release)

	a, b := <-first, <-second
	if a == nil || a != b {
		t.Error("forgetting another url should not split a flight")
	}
	if !c.Has("x") {
		t.Error("flight should still be stored")
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls.Load())
	}
}
