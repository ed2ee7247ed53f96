package objlist

import (
	"context"
	"time"

	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
)

// Stats counts the work an instance has done.
type Stats struct {
	// Cycles counts fetch cycles, including deferred ones that fetch nothing.
	Cycles int
	// Fetches counts backend queries.
	Fetches int
	// Failures counts failed backend queries.
	Failures int
}

// filterExpr builds the backend expression for the current filter.
// A list with filter fields but no filter matches nothing.
func (l *Instance) filterExpr() models.Expr {
	if len(l.spec.FilterFields) == 0 {
		return models.All()
	}
	if len(l.filter) == 0 {
		return models.False()
	}
	return l.filter.Expr(l.spec.FilterFields)
}

func (l *Instance) request() query.Request {
	req := query.Request{
		Expr:    l.filterExpr(),
		Detail:  l.spec.Detail,
		Sources: l.spec.Sources,
		Kinds:   l.spec.Kinds,
		OrderBy: l.spec.OrderBy,
	}
	if l.spec.Mode == ModeChunked {
		req.Offset = l.offset
		req.Limit = l.spec.ChunkSize
	}
	return req
}

// cycle starts one fetch. The result is reconciled in complete.
func (l *Instance) cycle() {
	l.timer = nil
	if l.disposed {
		return
	}
	l.stats.Cycles++

	if l.deferNext {
		l.deferNext = false
		l.log.Debug().Str("list", l.spec.Name).Msg("Deferring first fetch")
		l.schedule(0)
		return
	}

	req := l.request()
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.busy = true
	l.stats.Fetches++
	gen := l.gen
	backend := l.backend
	sched := l.sched

	l.log.Debug().
		Str("list", l.spec.Name).
		Str("expr", req.Expr.String()).
		Int("offset", req.Offset).
		Int("limit", req.Limit).
		Msg("Fetching records")

	sched.Go(func() {
		records, err := backend.Query(ctx, req)
		sched.Post(func() { l.complete(gen, records, err) })
	})
}

// complete reconciles a finished fetch and schedules the next cycle.
// Completions from a superseded generation are dropped.
func (l *Instance) complete(gen int, records []models.Record, err error) {
	if l.disposed || gen != l.gen {
		return
	}
	l.busy = false
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}

	if l.reloading {
		l.reloading = false
		l.log.Debug().Str("list", l.spec.Name).Int("discarded", len(records)).Msg("Reloading list")
		l.reset()
		if !l.applyPending() {
			l.cancelTimer()
			l.cycle()
		}
		return
	}

	if err != nil {
		l.stats.Failures++
		l.log.Warn().Err(err).Str("list", l.spec.Name).Msg("Failed to fetch records")
		l.bus.Publish(&events.CycleEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventFetchFailed, Time: l.now()},
			List:      l.spec.Name,
			Cycle:     l.stats.Cycles,
			Error:     err,
		})
		if l.applyPending() {
			return
		}
		switch {
		case l.spec.Mode == ModeChunked:
			// Nothing more to load until Update or Reload
			l.exhausted = true
			l.failed = err
			l.bus.Publish(&events.CycleEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventLoadComplete, Time: l.now()},
				List:      l.spec.Name,
				Cycle:     l.stats.Cycles,
				Fetched:   l.offset,
				Error:     err,
			})
		case !l.paused:
			l.schedule(l.spec.RefreshInterval)
		}
		return
	}
	l.failed = nil

	var res Result
	if l.spec.Mode == ModeChunked {
		res = l.appendChunk(records)
		l.offset += len(records)
		l.exhausted = l.spec.ChunkSize == 0 || len(records) < l.spec.ChunkSize
	} else {
		res = l.reconcile(records)
	}
	l.persist()
	l.updatePlaceholder()

	l.bus.Publish(&events.CycleEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventCycleComplete, Time: l.now()},
		List:      l.spec.Name,
		Cycle:     l.stats.Cycles,
		Fetched:   len(records),
		Created:   len(res.Created),
		Updated:   len(res.Updated),
		Removed:   len(res.Removed),
		Skipped:   res.Skipped,
	})

	if l.applyPending() {
		return
	}

	switch {
	case l.spec.Mode == ModeContinuous:
		if !l.paused {
			l.schedule(l.spec.RefreshInterval)
		}
	case l.exhausted:
		l.log.Debug().Str("list", l.spec.Name).Int("items", len(l.order)).Msg("Load complete")
		l.bus.Publish(&events.CycleEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventLoadComplete, Time: l.now()},
			List:      l.spec.Name,
			Cycle:     l.stats.Cycles,
			Fetched:   l.offset,
		})
	case !l.paused:
		l.schedule(0)
	}
}

// schedule arms the cycle timer, replacing any armed one.
func (l *Instance) schedule(d time.Duration) {
	l.cancelTimer()
	if l.disposed {
		return
	}
	l.timer = l.sched.After(d, l.cycle)
}

func (l *Instance) cancelTimer() {
	if l.timer != nil {
		l.timer.Cancel()
		l.timer = nil
	}
}

// abort supersedes any fetch in flight.
func (l *Instance) abort() {
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.busy = false
}

// persist saves the records of the rendered items.
func (l *Instance) persist() {
	records := make(map[string]models.Record, len(l.items))
	for id, it := range l.items {
		records[id] = it.record.Clone()
	}
	l.state.saveRecords(records, l.order)
}

// updatePlaceholder marks the body when the list waits for a filter.
// The attribute is only touched when its state changes.
func (l *Instance) updatePlaceholder() {
	want := len(l.spec.FilterFields) > 0 && len(l.filter) == 0
	if want == l.placeholder {
		return
	}
	l.placeholder = want
	if want {
		l.tree.SetAttr(l.body, render.AttrPlaceholder, constants.NoFilterPlaceholder)
	} else {
		l.tree.SetAttr(l.body, render.AttrPlaceholder, "")
	}
}

func (l *Instance) now() time.Time {
	return time.Now()
}
