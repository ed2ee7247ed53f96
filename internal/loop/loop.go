// Package loop provides the single logical thread list instances run on.
//
// Everything that touches a list instance (timer callbacks, fetch
// completions, user interaction) is posted to one Scheduler and runs there
// one function at a time. Only backend calls leave the thread, through Go.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels a scheduled callback.
type Handle interface {
	Cancel()
}

// Scheduler is the scheduling primitive consumed by list instances.
type Scheduler interface {
	// After runs fn on the scheduler thread once d has elapsed.
	After(d time.Duration, fn func()) Handle
	// Post runs fn on the scheduler thread as soon as possible.
	Post(fn func())
	// Go runs fn off the scheduler thread. fn must Post any result back.
	Go(fn func())
}

// ErrReused is returned by Run on a loop that has already run.
var ErrReused = errors.New("loop: Run called more than once")

// Loop is a Scheduler backed by one goroutine draining an unbounded queue.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	workers sync.WaitGroup
	started atomic.Bool
	running atomic.Bool
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled. It waits for outstanding Go
// work before returning; posts and Go calls made after that are dropped.
// A loop runs once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrReused
	}
	l.running.Store(true)
	defer l.stop()

	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			fn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// stop closes done under mu so no Go call can add a worker once Wait runs.
func (l *Loop) stop() {
	l.mu.Lock()
	l.running.Store(false)
	close(l.done)
	l.queue = nil
	l.mu.Unlock()
	l.workers.Wait()
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// Post queues fn for the loop thread.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped() {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits until it has run on the loop thread or the loop has
// stopped. It must not be called from the loop thread.
func (l *Loop) Do(fn func()) {
	ran := make(chan struct{})
	l.Post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-l.done:
	}
}

// After schedules fn on the loop thread after d.
func (l *Loop) After(d time.Duration, fn func()) Handle {
	t := &timer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Go runs fn on its own goroutine. Run waits for it before returning.
func (l *Loop) Go(fn func()) {
	l.mu.Lock()
	if l.stopped() {
		l.mu.Unlock()
		return
	}
	l.workers.Add(1)
	l.mu.Unlock()
	go func() {
		defer l.workers.Done()
		fn()
	}()
}

func (l *Loop) stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

type timer struct {
	t         *time.Timer
	cancelled atomic.Bool
}

// Cancel stops the timer. A callback already queued on the loop is skipped.
func (t *timer) Cancel() {
	t.cancelled.Store(true)
	t.t.Stop()
}
