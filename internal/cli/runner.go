package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/objlist"
	"github.com/rescale/livelist/internal/render"
	"github.com/rescale/livelist/internal/state"
)

// runner drives terminal lists: an in-memory render tree and a loop
// goroutine every list call runs on.
type runner struct {
	loop   *loop.Loop
	tree   *render.MemTree
	bus    *events.EventBus
	lists  []*objlist.Instance
	cancel context.CancelFunc
	errc   chan error
}

// newRunner starts a loop and an event bus. Lists are added with build.
func newRunner(ctx context.Context) *runner {
	ctx, cancel := context.WithCancel(ctx)
	r := &runner{
		loop:   loop.New(),
		tree:   render.NewMemTree(),
		bus:    events.NewEventBus(constants.EventBusDefaultBuffer),
		cancel: cancel,
		errc:   make(chan error, 1),
	}
	go func() { r.errc <- r.loop.Run(ctx) }()
	return r
}

// build creates the lists on the loop thread. b's tree, scheduler and bus
// are set to the runner's.
func (r *runner) build(b *listBuilder, names []string) error {
	b.tree = r.tree
	b.sched = r.loop
	b.bus = r.bus
	if b.session == nil {
		b.session = state.NewSession()
	}

	var err error
	r.loop.Do(func() {
		r.lists, err = b.build(names, r.tree.Root())
	})
	return err
}

// start starts every list.
func (r *runner) start() error {
	var errs []error
	r.loop.Do(func() {
		for _, l := range r.lists {
			if err := l.Start(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// find returns the list called name, or nil.
func (r *runner) find(name string) *objlist.Instance {
	for _, l := range r.lists {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// render draws every list on the loop thread, so that no fetch completion
// lands halfway through a table.
func (r *runner) render(w io.Writer, renderer *render.TextRenderer) error {
	var b strings.Builder
	r.loop.Do(func() {
		for i, l := range r.lists {
			if i > 0 {
				b.WriteString("\n")
			}
			_ = renderer.Render(&b, r.tree, l.Node())
		}
	})
	_, err := io.WriteString(w, b.String())
	return err
}

// stop disposes the lists, stops the loop and closes the bus.
func (r *runner) stop() error {
	// Returns at once when the loop already stopped with its context
	r.loop.Do(func() {
		for _, l := range r.lists {
			l.Dispose()
		}
	})
	r.cancel()
	err := <-r.errc
	r.bus.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
