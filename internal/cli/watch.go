package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
)

const clearScreen = "\033[H\033[2J"

// watchOptions configure a terminal watch session.
type watchOptions struct {
	cfg      *config.Config
	backend  query.Backend
	names    []string
	interval time.Duration
	// once stops after every list completed its first cycle
	once  bool
	clear bool
	out   io.Writer
	// setup runs after the lists started, for example to drive selections
	setup func(ctx context.Context, r *runner)
}

// newWatchCmd creates the 'watch' command.
func newWatchCmd() *cobra.Command {
	var interval time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "watch [LIST...]",
		Short: "Show lists as live text tables",
		Long: `Show lists in the terminal and redraw them whenever a fetch cycle
changes them. With no arguments every configured list is shown.

Examples:
  livelist watch
  livelist watch albums --interval 500ms
  livelist watch albums --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := GetContext()

			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			out := cmd.OutOrStdout()
			return runWatch(ctx, watchOptions{
				cfg:      cfg,
				backend:  backend,
				names:    args,
				interval: interval,
				once:     once,
				clear:    !once && isTerminal(out),
				out:      out,
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Override the refresh interval of every list")
	cmd.Flags().BoolVar(&once, "once", false, "Print the lists after their first cycle and exit")

	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runWatch shows the lists until ctx is done, or until every list has
// completed a cycle when opts.once is set.
func runWatch(ctx context.Context, opts watchOptions) error {
	log := GetLogger()
	if opts.clear {
		// Log lines would be wiped by the next redraw
		log.SetOutput(os.Stderr)
	}

	r := newRunner(ctx)
	cycles := r.bus.Subscribe(events.EventCycleComplete)
	failures := r.bus.Subscribe(events.EventFetchFailed)

	b := &listBuilder{
		cfg:      opts.cfg,
		backend:  opts.backend,
		logger:   log,
		interval: opts.interval,
		onAction: func(list, action, ref string) {
			log.Info().Str("list", list).Str("action", action).Str("ref", ref).Msg("Action")
		},
	}
	if err := r.build(b, opts.names); err != nil {
		_ = r.stop()
		return err
	}
	if err := r.start(); err != nil {
		_ = r.stop()
		return err
	}
	if opts.setup != nil {
		opts.setup(ctx, r)
	}

	renderer := render.NewTextRenderer(opts.out)
	var last string
	redraw := func() error {
		var frame strings.Builder
		if err := r.render(&frame, renderer); err != nil {
			return err
		}
		if frame.String() == last {
			return nil
		}
		last = frame.String()
		if opts.clear {
			if _, err := io.WriteString(opts.out, clearScreen); err != nil {
				return err
			}
		}
		_, err := io.WriteString(opts.out, last)
		return err
	}

	pending := make(map[string]bool, len(r.lists))
	for _, l := range r.lists {
		pending[l.Name()] = true
	}

	var err error
	for {
		var ev events.Event
		var ok bool
		select {
		case <-ctx.Done():
			return r.stop()
		case ev, ok = <-cycles:
		case ev, ok = <-failures:
		}
		if !ok {
			break
		}

		ce := ev.(*events.CycleEvent)
		delete(pending, ce.List)
		if ce.Type() == events.EventFetchFailed {
			log.Warn().Err(ce.Error).Str("list", ce.List).Msg("Fetch failed")
		}

		if opts.once {
			if len(pending) == 0 {
				err = redraw()
				break
			}
			continue
		}
		if err = redraw(); err != nil {
			break
		}
	}

	if stopErr := r.stop(); err == nil {
		err = stopErr
	}
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
