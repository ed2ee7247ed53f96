package gui

import (
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"

	"github.com/rescale/livelist/internal/logging"
	"github.com/rescale/livelist/internal/loop"
)

// Scheduler runs list callbacks on the fyne main goroutine. Timers use
// time.AfterFunc and hop onto the main goroutine with fyne.Do.
type Scheduler struct {
	do     func(func())
	logger *logging.Logger
}

// NewScheduler creates a scheduler bound to the running fyne app.
func NewScheduler(logger *logging.Logger) *Scheduler {
	return &Scheduler{do: fyne.Do, logger: logger}
}

type guiTimer struct {
	t         *time.Timer
	cancelled atomic.Bool
}

func (g *guiTimer) Cancel() {
	g.cancelled.Store(true)
	g.t.Stop()
}

// After runs fn on the main goroutine once d has elapsed, unless the
// handle was cancelled first.
func (s *Scheduler) After(d time.Duration, fn func()) loop.Handle {
	g := &guiTimer{}
	g.t = time.AfterFunc(d, func() {
		s.do(func() {
			if !g.cancelled.Load() {
				fn()
			}
		})
	})
	return g
}

// Post runs fn on the main goroutine.
func (s *Scheduler) Post(fn func()) {
	s.do(fn)
}

// Go runs fn on its own goroutine.
func (s *Scheduler) Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil && s.logger != nil {
				s.logger.Error().Msgf("PANIC in list fetch: %v", r)
			}
		}()
		fn()
	}()
}
