package objlist

import (
	"errors"
	"fmt"

	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/render"
)

// Result summarizes what one cycle did to the rendered items.
type Result struct {
	Created []string
	Updated []string
	Removed []string
	Skipped int
	Swaps   int
}

// accepted is a fresh record that passed validation.
type accepted struct {
	id     string
	record models.Record
	texts  map[string]string
}

// screen validates fresh records in order. Records with a missing or
// duplicate identity or a failing transform are reported and left out.
// kept collects identities whose record was malformed but whose item
// already exists; those items stay untouched.
func (l *Instance) screen(fresh []models.Record) (ok []accepted, kept map[string]bool, skipped int) {
	seen := make(map[string]bool, len(fresh))
	kept = make(map[string]bool)

	for _, r := range fresh {
		id, err := r.Identity(l.spec.Identity)
		if err != nil {
			l.skip(r, "", err)
			skipped++
			continue
		}
		if seen[id] {
			l.skip(r, id, fmt.Errorf("%w: duplicate identity %q", models.ErrMalformedRecord, id))
			skipped++
			continue
		}
		seen[id] = true

		texts, err := l.spec.checkRecord(r.Fields)
		if err != nil {
			if !errors.Is(err, models.ErrMalformedRecord) {
				err = fmt.Errorf("%w: %v", models.ErrMalformedRecord, err)
			}
			l.skip(r, id, err)
			skipped++
			if _, exists := l.items[id]; exists {
				kept[id] = true
			}
			continue
		}
		ok = append(ok, accepted{id: id, record: r, texts: texts})
	}
	return ok, kept, skipped
}

// reconcile makes the rendered items mirror fresh: new identities are
// created, existing ones patched where fields changed, absent ones
// removed, then nodes are moved to the fresh order.
func (l *Instance) reconcile(fresh []models.Record) Result {
	var res Result
	if len(fresh) == 0 && len(l.items) == 0 {
		return res
	}

	ok, kept, skipped := l.screen(fresh)
	res.Skipped = skipped

	present := make(map[string]bool, len(ok)+len(kept))
	for _, a := range ok {
		present[a.id] = true
	}
	for id := range kept {
		present[id] = true
	}

	// Remove first so that created items are appended after survivors
	remaining := l.order[:0]
	for _, id := range l.order {
		if present[id] {
			remaining = append(remaining, id)
			continue
		}
		l.removeItem(id)
		res.Removed = append(res.Removed, id)
	}
	l.order = remaining

	target := make([]string, 0, len(present))
	for _, r := range fresh {
		id, err := r.Identity(l.spec.Identity)
		if err != nil || !present[id] {
			continue
		}
		present[id] = false
		target = append(target, id)
	}

	for _, a := range ok {
		if l.upsert(a, &res) {
			l.order = append(l.order, a.id)
		}
	}

	res.Swaps = reposition(l.tree, l.order, l.nodeOf, target)
	if res.Swaps > 0 {
		l.bus.Publish(&events.ReorderEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventReordered, Time: l.now()},
			List:      l.spec.Name,
			Swaps:     res.Swaps,
		})
	}
	return res
}

// appendChunk adds a chunk of records: new identities are appended in
// order, existing ones patched. Nothing is removed or moved.
func (l *Instance) appendChunk(fresh []models.Record) Result {
	var res Result
	ok, _, skipped := l.screen(fresh)
	res.Skipped = skipped

	for _, a := range ok {
		if l.upsert(a, &res) {
			l.order = append(l.order, a.id)
		}
	}
	return res
}

// upsert creates or patches the item of an accepted record and reports
// whether it was created. New items are appended to the body.
func (l *Instance) upsert(a accepted, res *Result) bool {
	if it, exists := l.items[a.id]; exists {
		changed := models.ChangedFields(it.record, a.record, l.spec.Identity)
		if len(changed) == 0 && it.record.Ref == a.record.Ref {
			return false
		}
		it.apply(a.record, changed, a.texts)
		res.Updated = append(res.Updated, a.id)
		l.bus.PublishItem(events.EventItemPatched, l.spec.Name, a.id, changed)
		return false
	}

	l.addItem(a.id, a.record, a.texts)
	res.Created = append(res.Created, a.id)
	l.bus.PublishItem(events.EventItemCreated, l.spec.Name, a.id, nil)
	return true
}

// addItem renders a checked record and appends it to the body. The caller
// maintains l.order.
func (l *Instance) addItem(id string, r models.Record, texts map[string]string) {
	it := l.newItem(id, r, texts)
	l.items[id] = it
	l.tree.Append(l.body, it.node)
}

// removeItem destroys the item of id. The caller maintains l.order.
func (l *Instance) removeItem(id string) {
	it, ok := l.items[id]
	if !ok {
		return
	}
	l.tree.Destroy(it.node)
	delete(l.items, id)
	l.bus.PublishItem(events.EventItemRemoved, l.spec.Name, id, nil)
}

func (l *Instance) skip(r models.Record, id string, reason error) {
	l.log.Warn().
		Err(reason).
		Str("list", l.spec.Name).
		Str("ref", r.Ref).
		Str("identity", id).
		Msg("Skipping malformed record")
	l.bus.Publish(&events.SkipEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventRecordSkipped, Time: l.now()},
		List:      l.spec.Name,
		Ref:       r.Ref,
		Identity:  id,
		Reason:    reason,
	})
}

func (l *Instance) nodeOf(id string) render.Node {
	return l.items[id].node
}
