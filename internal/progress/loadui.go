// Package progress shows per-list load progress in the terminal while lists
// fetch their records.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/livelist/internal/constants"
)

// LoadUI manages one progress bar per loading list using mpb. When stderr is
// not a terminal no bars are drawn and progress is reported as plain lines.
type LoadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalLists int
	completed  atomic.Int32

	mu   sync.Mutex
	bars map[string]*ListBar
}

// ListBar tracks the records loaded by one list. The bar total grows with
// each chunk, since the size of the source is not known up front.
type ListBar struct {
	bar       *mpb.Bar
	ui        *LoadUI
	index     int
	name      string
	records   atomic.Int64
	chunks    atomic.Int32
	failures  atomic.Int32
	done      atomic.Bool
	startTime time.Time
}

// NewLoadUI creates a load UI drawing to stderr.
func NewLoadUI(totalLists int) *LoadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSI(os.Stderr)
	}
	return newLoadUI(os.Stderr, isTerminal, totalLists)
}

func newLoadUI(out io.Writer, isTerminal bool, totalLists int) *LoadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(constants.ProgressBarWidth),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &LoadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalLists: totalLists,
		bars:       make(map[string]*ListBar),
	}
}

// AddList creates the bar for a list. Adding the same name twice returns
// the existing bar.
func (u *LoadUI) AddList(name string) *ListBar {
	u.mu.Lock()
	defer u.mu.Unlock()

	if lb, ok := u.bars[name]; ok {
		return lb
	}

	lb := &ListBar{
		ui:        u,
		index:     len(u.bars) + 1,
		name:      name,
		startTime: time.Now(),
	}

	if u.isTerminal {
		lb.bar = u.progress.New(0,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					base := fmt.Sprintf("[%d/%d] %s", lb.index, u.totalLists, lb.name)
					if f := lb.failures.Load(); f > 0 {
						return fmt.Sprintf("%s (%d failed)", base, f)
					}
					return base
				}, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("%d records in %d chunks", lb.records.Load(), lb.chunks.Load())
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			),
		)
	} else {
		fmt.Fprintf(u.out, "Loading [%d/%d]: %s\n", lb.index, u.totalLists, name)
	}

	u.bars[name] = lb
	return lb
}

// Bar returns the bar of a list, or nil.
func (u *LoadUI) Bar(name string) *ListBar {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bars[name]
}

// Chunk records a fetched chunk of n records. more reports whether further
// chunks are expected.
func (b *ListBar) Chunk(n int, more bool) {
	if b.done.Load() {
		return
	}
	total := b.records.Add(int64(n))
	b.chunks.Add(1)

	if b.bar == nil {
		return
	}
	b.bar.IncrBy(n)
	if more {
		// Keep the bar short of full while chunks are still coming
		b.bar.SetTotal(total+int64(n)+1, false)
	}
}

// Failed counts a failed fetch.
func (b *ListBar) Failed() {
	b.failures.Add(1)
}

// Complete marks the list loaded, or failed when err is set, and prints a
// summary line above the bars.
func (b *ListBar) Complete(err error) {
	if !b.done.CompareAndSwap(false, true) {
		return
	}
	elapsed := time.Since(b.startTime).Round(time.Millisecond)

	var msg string
	if err == nil {
		if b.bar != nil {
			b.bar.SetTotal(-1, true)
		}
		msg = fmt.Sprintf("✓ %s: %d records in %d chunks (%s)\n",
			b.name, b.records.Load(), b.chunks.Load(), elapsed)
	} else {
		if b.bar != nil {
			b.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s: %v (after %d records)\n", b.name, err, b.records.Load())
	}

	if _, werr := io.WriteString(b.ui.Writer(), msg); werr != nil {
		fmt.Fprint(os.Stderr, msg)
	}
	b.ui.completed.Add(1)
}

// Records returns the number of records loaded so far.
func (b *ListBar) Records() int64 {
	return b.records.Load()
}

// Done reports whether Complete was called.
func (b *ListBar) Done() bool {
	return b.done.Load()
}

// Wait blocks until every bar has completed or aborted.
func (u *LoadUI) Wait() {
	u.mu.Lock()
	for _, lb := range u.bars {
		if !lb.done.Load() && lb.bar != nil {
			lb.bar.Abort(false)
		}
	}
	u.mu.Unlock()
	u.progress.Wait()
}

// Writer returns an io.Writer that prints above the progress bars.
func (u *LoadUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// Completed returns the number of lists that finished loading.
func (u *LoadUI) Completed() int {
	return int(u.completed.Load())
}

// IsTerminal reports whether bars are drawn.
func (u *LoadUI) IsTerminal() bool {
	return u.isTerminal
}
