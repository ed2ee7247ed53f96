package gui

import (
	"context"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rescale/livelist/internal/events"
)

// StatusLevel represents the type of status being displayed
type StatusLevel int

const (
	// StatusInfo is the default info level
	StatusInfo StatusLevel = iota
	// StatusSuccess indicates a completed load
	StatusSuccess
	// StatusWarning indicates skipped records
	StatusWarning
	// StatusError indicates a failed fetch
	StatusError
)

// StatusBar shows the latest list event with a level icon.
type StatusBar struct {
	widget.BaseWidget

	mu      sync.RWMutex
	level   StatusLevel
	message string

	icon  *widget.Icon
	label *widget.Label
}

// NewStatusBar creates a new status bar with default "Ready" message
func NewStatusBar() *StatusBar {
	sb := &StatusBar{
		level:   StatusInfo,
		message: "Ready",
	}
	sb.label = widget.NewLabel("Ready")
	sb.label.TextStyle = fyne.TextStyle{Italic: true}
	sb.icon = widget.NewIcon(theme.InfoIcon())
	sb.ExtendBaseWidget(sb)
	return sb
}

// SetStatus updates the message and level. It may be called from any
// goroutine.
func (sb *StatusBar) SetStatus(message string, level StatusLevel) {
	sb.mu.Lock()
	sb.level = level
	sb.message = message
	sb.mu.Unlock()

	fyne.Do(func() {
		sb.label.SetText(message)
		switch level {
		case StatusInfo:
			sb.icon.SetResource(theme.InfoIcon())
		case StatusSuccess:
			sb.icon.SetResource(theme.ConfirmIcon())
		case StatusWarning:
			sb.icon.SetResource(theme.WarningIcon())
		case StatusError:
			sb.icon.SetResource(theme.ErrorIcon())
		}
	})
}

// Message returns the current status message
func (sb *StatusBar) Message() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.message
}

// Level returns the current status level
func (sb *StatusBar) Level() StatusLevel {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.level
}

// Watch reports list events from bus until ctx is done.
func (sb *StatusBar) Watch(ctx context.Context, bus *events.EventBus) {
	ch := bus.SubscribeAll()
	go func() {
		defer bus.UnsubscribeAll(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if msg, level, show := describe(ev); show {
					sb.SetStatus(msg, level)
				}
			}
		}
	}()
}

// describe turns an event into a status line. Per-item events are not shown.
func describe(ev events.Event) (string, StatusLevel, bool) {
	switch e := ev.(type) {
	case *events.CycleEvent:
		switch e.Type() {
		case events.EventFetchFailed:
			return fmt.Sprintf("%s: fetch failed: %v", e.List, e.Error), StatusError, true
		case events.EventLoadComplete:
			if e.Error != nil {
				return fmt.Sprintf("%s: load stopped after %d records", e.List, e.Fetched), StatusWarning, true
			}
			return fmt.Sprintf("%s: loaded %d records", e.List, e.Fetched), StatusSuccess, true
		case events.EventCycleComplete:
			if e.Created+e.Updated+e.Removed == 0 {
				return "", StatusInfo, false
			}
			return fmt.Sprintf("%s: %d new, %d changed, %d removed", e.List, e.Created, e.Updated, e.Removed), StatusInfo, true
		}
	case *events.SkipEvent:
		return fmt.Sprintf("%s: skipped %s: %v", e.List, e.Ref, e.Reason), StatusWarning, true
	case *events.SelectionEvent:
		return fmt.Sprintf("%s: selected %s", e.List, e.Identity), StatusInfo, true
	case *events.LogEvent:
		if e.Level >= events.WarnLevel {
			level := StatusWarning
			if e.Level == events.ErrorLevel {
				level = StatusError
			}
			return e.Message, level, true
		}
	}
	return "", StatusInfo, false
}

// CreateRenderer implements fyne.Widget
func (sb *StatusBar) CreateRenderer() fyne.WidgetRenderer {
	content := container.NewHBox(sb.icon, sb.label)
	return widget.NewSimpleRenderer(content)
}
