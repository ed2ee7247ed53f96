package gui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/logging"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/objlist"
	"github.com/rescale/livelist/internal/render"
)

// ErrNoDisplay is returned when no display is available on Linux.
var ErrNoDisplay = errors.New("GUI mode requires a display: DISPLAY and WAYLAND_DISPLAY are not set")

// Builder creates the lists shown in the window under parent. It runs on
// the fyne main goroutine.
type Builder func(tree render.Tree, sched loop.Scheduler, parent render.Node) ([]*objlist.Instance, error)

// Options configure the window.
type Options struct {
	Title  string
	Build  Builder
	Logger *logging.Logger
	Bus    *events.EventBus
}

// Launch opens a window showing the lists made by opts.Build side by side
// and runs the fyne event loop until the window closes or ctx is done.
func Launch(ctx context.Context, opts Options) error {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return ErrNoDisplay
	}
	if opts.Build == nil {
		return errors.New("gui: no list builder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("gui", opts.Bus)
	}

	a := app.NewWithID("com.rescale.livelist")
	a.Settings().SetTheme(newListTheme())

	title := opts.Title
	if title == "" {
		title = "livelist"
	}
	w := a.NewWindow(title)
	w.SetMaster()

	win := &window{
		tree:   NewTree(),
		sched:  NewScheduler(logger),
		logger: logger,
		status: NewStatusBar(),
	}
	lists, err := opts.Build(win.tree, win.sched, win.tree.Root())
	if err != nil {
		return fmt.Errorf("failed to build lists: %w", err)
	}
	win.lists = lists
	win.columns(len(lists))

	if opts.Bus != nil {
		win.status.Watch(ctx, opts.Bus)
	}

	w.SetContent(win.content())
	w.Resize(fyne.NewSize(1200, 700))
	w.CenterOnScreen()

	a.Lifecycle().SetOnStarted(win.start)
	w.SetOnClosed(win.dispose)

	go func() {
		<-ctx.Done()
		fyne.Do(a.Quit)
	}()

	w.ShowAndRun()
	return nil
}

// window holds the lists of one window.
type window struct {
	tree   *Tree
	sched  *Scheduler
	logger *logging.Logger
	status *StatusBar
	lists  []*objlist.Instance
}

// columns lays the lists out side by side.
func (w *window) columns(n int) {
	if n < 1 {
		n = 1
	}
	w.tree.root.box.Layout = layout.NewGridLayoutWithColumns(n)
	w.tree.root.box.Refresh()
}

func (w *window) content() fyne.CanvasObject {
	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.ViewRefreshIcon(), w.reload),
		widget.NewToolbarAction(theme.MediaPauseIcon(), w.pause),
		widget.NewToolbarAction(theme.MediaPlayIcon(), w.resume),
	)
	return container.NewBorder(toolbar, w.status, nil, nil, container.NewVScroll(w.tree.Object()))
}

func (w *window) start() {
	for _, l := range w.lists {
		if err := l.Start(); err != nil {
			w.logger.Warn().Err(err).Str("list", l.Name()).Msg("Failed to start list")
		}
	}
	w.status.SetStatus(fmt.Sprintf("Watching %d lists", len(w.lists)), StatusInfo)
}

func (w *window) reload() {
	for _, l := range w.lists {
		if err := l.Reload(); err != nil {
			w.logger.Warn().Err(err).Str("list", l.Name()).Msg("Failed to reload list")
		}
	}
}

func (w *window) pause() {
	for _, l := range w.lists {
		l.Pause()
	}
	w.status.SetStatus("Paused", StatusInfo)
}

func (w *window) resume() {
	for _, l := range w.lists {
		l.Resume()
	}
	w.status.SetStatus("Resumed", StatusInfo)
}

func (w *window) dispose() {
	for _, l := range w.lists {
		l.Dispose()
	}
}
