package objlist

import (
	"strconv"

	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/render"
)

// Item is the rendered node of one record identity.
type Item struct {
	list    *Instance
	id      string
	record  models.Record
	node    render.Node
	cells   map[string]*cell
	actions *actionCell
}

// Identity returns the item's identity value.
func (it *Item) Identity() string { return it.id }

// Ref returns the object reference of the last seen record.
func (it *Item) Ref() string { return it.record.Ref }

// Record returns a copy of the last seen record.
func (it *Item) Record() models.Record { return it.record.Clone() }

// Node returns the item's render node.
func (it *Item) Node() render.Node { return it.node }

// List returns the list holding the item.
func (it *Item) List() *Instance { return it.list }

// Label returns the displayed value of the primary field.
func (it *Item) Label() string {
	if c, ok := it.cells[it.list.spec.Primary]; ok && c.field.Display == DisplayText {
		return c.rendered
	}
	return models.ValueString(it.record.Fields[it.list.spec.Primary])
}

// VisibleActions returns the names of the actions currently shown.
func (it *Item) VisibleActions() []string {
	if it.actions == nil {
		return nil
	}
	return it.actions.visible()
}

// newItem renders a record. The record must have passed Spec.checkRecord,
// which produced texts.
func (l *Instance) newItem(id string, r models.Record, texts map[string]string) *Item {
	t := l.tree
	it := &Item{
		list:   l,
		id:     id,
		record: r.Clone(),
		node:   t.Create(render.KindBox),
		cells:  make(map[string]*cell, len(l.spec.Fields)),
	}
	t.SetAttr(it.node, render.AttrRole, render.RoleItem)
	t.SetAttr(it.node, render.AttrIdentity, id)
	t.AddClass(it.node, "list_item")

	for _, f := range l.spec.Fields {
		c := &cell{node: t.Create(nodeKinds[f.Display]), field: f}
		t.SetAttr(c.node, render.AttrRole, render.RoleCell)
		t.SetAttr(c.node, render.AttrField, f.Name)
		if f.Weight > 0 {
			t.SetAttr(c.node, render.AttrWeight, strconv.FormatFloat(f.Weight, 'f', -1, 64))
		}
		if f.Style != "" {
			t.SetStyle(c.node, f.Style)
		}
		if _, err := patchChecked(t, c, r.Fields[f.Name], texts); err != nil {
			l.log.Warn().Err(err).Str("identity", id).Str("field", f.Name).Msg("Failed to render field")
		}
		t.Append(it.node, c.node)
		it.cells[f.Name] = c
	}

	if len(l.spec.Actions) > 0 {
		it.actions = newActionCell(t, l.spec.Actions, l.spec.ActionFilter, it.Ref)
		it.actions.onToggle = func(action string, visible bool) {
			l.publishAction(id, action, visible)
		}
		it.actions.update(it.record.Ref, it.record.Fields)
		t.Append(it.node, it.actions.node)
	}

	label := it.Label()
	t.SetAttr(it.node, "title", label)
	t.Draggable(it.node, r.Ref, label)

	t.On(it.node, render.EventClick, func() {
		if err := l.Select(id); err != nil {
			l.log.Debug().Err(err).Str("identity", id).Msg("Selection ignored")
		}
	})
	for event, fn := range l.spec.ItemEvents {
		fn := fn
		t.On(it.node, event, func() { fn(it) })
	}
	if l.spec.ItemDrop != nil {
		t.DropTarget(it.node, func(ref string) { l.spec.ItemDrop(it, ref) })
	}

	if id == l.selected {
		t.AddClass(it.node, SelectedClass)
	}
	return it
}

// apply merges the changed fields of fresh into the stored record and
// patches the cells that display them. It returns the fields whose cells
// were mutated.
func (it *Item) apply(fresh models.Record, changed []string, texts map[string]string) []string {
	t := it.list.tree
	refChanged := it.record.Ref != fresh.Ref
	it.record.Ref = fresh.Ref
	for _, name := range changed {
		it.record.Fields[name] = fresh.Fields[name]
	}

	var patched []string
	labelChanged := false
	for _, name := range changed {
		c, ok := it.cells[name]
		if !ok {
			continue
		}
		mutated, err := patchChecked(t, c, fresh.Fields[name], texts)
		if err != nil {
			it.list.log.Warn().Err(err).Str("identity", it.id).Str("field", name).Msg("Failed to patch field")
			continue
		}
		if mutated {
			patched = append(patched, name)
			if name == it.list.spec.Primary {
				labelChanged = true
			}
		}
	}

	if labelChanged || refChanged {
		label := it.Label()
		if labelChanged {
			t.SetAttr(it.node, "title", label)
		}
		t.Draggable(it.node, it.record.Ref, label)
	}

	if it.actions != nil {
		it.actions.update(it.record.Ref, it.record.Fields)
	}
	return patched
}
