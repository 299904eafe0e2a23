// ABOUTME: Single-threaded event loop owning the transport
// ABOUTME: Serialises commands and periodic ticks onto one goroutine
package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs fn periodically on the transport's goroutine until the
// returned cancel func is called. Each run completes before the next.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// Loop runs posted functions one at a time on its own goroutine. All
// controller state is touched only from inside the loop.
type Loop struct {
	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewLoop starts a loop
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		tasks:  make(chan func(), 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			return
		}
	}
}

// Post queues fn. It returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs fn on the loop and waits for it. It must not be called from
// inside the loop.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Every posts fn every interval. A tick is skipped while the previous
// one is still queued so a slow loop never builds a backlog.
func (l *Loop) Every(interval time.Duration, fn func()) func() {
	stop := make(chan struct{})
	var cancelled, pending atomic.Bool

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				ok := l.Post(func() {
					pending.Store(false)
					if !cancelled.Load() {
						fn()
					}
				})
				if !ok {
					return
				}
			case <-stop:
				return
			case <-l.quit:
				return
			}
		}
	}()

	return func() {
		if cancelled.CompareAndSwap(false, true) {
			close(stop)
		}
	}
}

// Close stops the loop and waits for the running task to finish. It
// must not be called from inside the loop. Queued tasks are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
	})
	<-l.done
	l.logger.Debug("transport loop stopped")
}
