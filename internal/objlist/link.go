package objlist

import (
	"fmt"

	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/models"
)

// Select marks the item of id as selected, persists the selection and,
// when the list is linked, filters the linked list by the selected
// record's link fields.
func (l *Instance) Select(id string) error {
	if l.disposed {
		return ErrDisposed
	}
	it, ok := l.items[id]
	if !ok {
		return fmt.Errorf("%w: %q in list %s", ErrUnknownItem, id, l.spec.Name)
	}

	prev := l.selected
	if prev != id {
		if p, ok := l.items[prev]; ok {
			l.tree.RemoveClass(p.node, SelectedClass)
		}
		l.tree.AddClass(it.node, SelectedClass)
		l.selected = id
		l.state.saveSelected(id)
		l.bus.Publish(&events.SelectionEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventSelectionChanged, Time: l.now()},
			List:      l.spec.Name,
			Previous:  prev,
			Identity:  id,
		})
	}

	if l.spec.Link == nil {
		return nil
	}
	f := make(models.Filter, len(l.spec.LinkFields))
	for _, field := range l.spec.LinkFields {
		f[field] = it.record.Fields[field]
	}
	l.spec.Link.SetFilter(f)
	return nil
}

// SetFilter replaces the filter and refreshes the list. It is ignored
// when the list has no filter fields or the filter is unchanged. While a
// fetch is in flight the filter is applied once it completes. A nil or
// empty filter clears the list.
func (l *Instance) SetFilter(f models.Filter) {
	if l.disposed || len(l.spec.FilterFields) == 0 {
		return
	}
	if len(f) == 0 {
		f = nil
	}
	if l.busy {
		pending := f.Clone()
		l.pending = &pending
		return
	}
	l.applyFilter(f)
}

// applyPending applies a filter set during the last fetch and reports
// whether it started a cycle.
func (l *Instance) applyPending() bool {
	if l.pending == nil {
		return false
	}
	f := *l.pending
	l.pending = nil
	return l.applyFilter(f)
}

// applyFilter installs f and runs a cycle at once. It reports whether a
// cycle was started.
func (l *Instance) applyFilter(f models.Filter) bool {
	if f.Equal(l.filter) {
		return false
	}
	l.filter = f.Clone()
	l.state.saveFilter(l.filter)
	l.log.Debug().Str("list", l.spec.Name).Interface("filter", map[string]any(l.filter)).Msg("Filter changed")
	l.bus.Publish(&events.FilterEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventFilterChanged, Time: l.now()},
		List:      l.spec.Name,
		Filter:    l.filter.Clone(),
	})

	if l.spec.Mode == ModeChunked {
		l.reset()
	}
	l.updatePlaceholder()

	if !l.started {
		return false
	}
	l.cancelTimer()
	l.cycle()
	return true
}
