package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/objlist"
	"github.com/rescale/livelist/internal/progress"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
)

// Dump output formats
const (
	formatText = "text"
	formatJSON = "json"
)

// dumpOptions configure a one-shot load.
type dumpOptions struct {
	cfg     *config.Config
	backend query.Backend
	names   []string
	format  string
	// chunked forces every list into chunked mode
	chunked   bool
	chunkSize int
	out       io.Writer
	ui        *progress.LoadUI
}

// dumpedList is the JSON form of one loaded list.
type dumpedList struct {
	Name    string          `json:"name"`
	Records []models.Record `json:"records"`
	Error   string          `json:"error,omitempty"`
}

// newDumpCmd creates the 'dump' command.
func newDumpCmd() *cobra.Command {
	var format string
	var chunked bool
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "dump [LIST...]",
		Short: "Load lists once and print them",
		Long: `Load every named list, or every configured list, and print the result.

Chunked lists are loaded until their source is exhausted; continuous lists
print after their first fetch. Load progress is shown per list on stderr.

Examples:
  livelist dump albums tracks
  livelist dump --chunked --chunk-size 200 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("--format must be %s or %s, got %q", formatText, formatJSON, format)
			}
			if chunkSize < 0 {
				return fmt.Errorf("--chunk-size must not be negative, got %d", chunkSize)
			}
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

			total := len(args)
			if total == 0 {
				total = len(cfg.Lists)
			}
			return runDump(ctx, dumpOptions{
				cfg:       cfg,
				backend:   backend,
				names:     args,
				format:    format,
				chunked:   chunked,
				chunkSize: chunkSize,
				out:       cmd.OutOrStdout(),
				ui:        progress.NewLoadUI(total),
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", formatText, "Output format: text or json")
	cmd.Flags().BoolVar(&chunked, "chunked", false, "Load every list in chunked mode")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size for lists loaded in chunked mode (0 keeps the configured size)")

	return cmd
}

// runDump loads the lists, waits for each to finish loading and prints
// them.
func runDump(ctx context.Context, opts dumpOptions) error {
	log := GetLogger()
	if opts.ui != nil {
		log.SetOutput(opts.ui.Writer())
	}

	r := newRunner(ctx)
	// Typed subscriptions so that item events cannot crowd out cycle events
	cycles := r.bus.Subscribe(events.EventCycleComplete)
	loads := r.bus.Subscribe(events.EventLoadComplete)
	failures := r.bus.Subscribe(events.EventFetchFailed)

	b := &listBuilder{
		cfg:     opts.cfg,
		backend: opts.backend,
		logger:  log,
	}
	if opts.chunked {
		b.mode = config.ModeChunked
	}
	if opts.chunkSize > 0 {
		b.chunkSize = opts.chunkSize
	}
	if err := r.build(b, opts.names); err != nil {
		_ = r.stop()
		return err
	}

	chunkSizes := make(map[string]int, len(r.lists))
	chunkedLists := make(map[string]bool, len(r.lists))
	pending := make(map[string]bool, len(r.lists))
	failed := make(map[string]error)
	r.loop.Do(func() {
		for _, l := range r.lists {
			spec := l.Spec()
			chunkSizes[l.Name()] = spec.ChunkSize
			chunkedLists[l.Name()] = spec.Mode == objlist.ModeChunked
			pending[l.Name()] = true
			if opts.ui != nil {
				opts.ui.AddList(l.Name())
			}
		}
	})
	if err := r.start(); err != nil {
		_ = r.stop()
		return err
	}

	bar := func(name string) *progress.ListBar {
		if opts.ui == nil {
			return nil
		}
		return opts.ui.Bar(name)
	}

	handle := func(ce *events.CycleEvent) {
		if !pending[ce.List] {
			return
		}
		lb := bar(ce.List)

		switch ce.Type() {
		case events.EventCycleComplete:
			size := chunkSizes[ce.List]
			more := chunkedLists[ce.List] && size > 0 && ce.Fetched >= size
			if lb != nil {
				lb.Chunk(ce.Fetched, more)
			}
			if !chunkedLists[ce.List] {
				delete(pending, ce.List)
				if lb != nil {
					lb.Complete(nil)
				}
			}
		case events.EventLoadComplete:
			delete(pending, ce.List)
			if ce.Error != nil {
				failed[ce.List] = ce.Error
				if lb != nil {
					lb.Failed()
				}
			}
			if lb != nil {
				lb.Complete(ce.Error)
			}
		case events.EventFetchFailed:
			delete(pending, ce.List)
			failed[ce.List] = ce.Error
			if lb != nil {
				lb.Failed()
				lb.Complete(ce.Error)
			}
		}
	}
	// A cycle completion is published before the load completion or
	// failure that follows it, so it is already buffered by then.
	drainCycles := func() {
		for {
			select {
			case ev, ok := <-cycles:
				if !ok {
					return
				}
				handle(ev.(*events.CycleEvent))
			default:
				return
			}
		}
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			if opts.ui != nil {
				opts.ui.Wait()
			}
			_ = r.stop()
			return ctx.Err()
		case ev := <-cycles:
			handle(ev.(*events.CycleEvent))
		case ev := <-loads:
			drainCycles()
			handle(ev.(*events.CycleEvent))
		case ev := <-failures:
			drainCycles()
			handle(ev.(*events.CycleEvent))
		}
	}
	if opts.ui != nil {
		opts.ui.Wait()
	}

	var err error
	switch opts.format {
	case formatJSON:
		err = writeJSON(opts.out, r, failed)
	default:
		err = r.render(opts.out, render.NewTextRenderer(opts.out))
	}

	if stopErr := r.stop(); err == nil {
		err = stopErr
	}
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("failed to load %s", strings.Join(names, ", "))
	}
	return nil
}

func writeJSON(w io.Writer, r *runner, failed map[string]error) error {
	var out []dumpedList
	r.loop.Do(func() {
		for _, l := range r.lists {
			d := dumpedList{Name: l.Name(), Records: []models.Record{}}
			for _, it := range l.Items() {
				d.Records = append(d.Records, it.Record())
			}
			if err := failed[l.Name()]; err != nil {
				d.Error = err.Error()
			}
			out = append(out, d)
		}
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
