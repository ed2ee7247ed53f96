package objlist

import (
	"context"
	"errors"
	"strconv"

	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/logging"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
	"github.com/rescale/livelist/internal/state"
)

// SelectedClass marks the selected item node.
const SelectedClass = constants.SelectedClass

// Deps are the collaborators of an Instance.
type Deps struct {
	Tree      render.Tree
	Backend   query.Backend
	Store     state.Store
	Scheduler loop.Scheduler
	// Logger defaults to a no-op logger.
	Logger *logging.Logger
	// Bus receives list events. Optional.
	Bus *events.EventBus
	// Parent, when set, receives the list root node.
	Parent render.Node
}

// Instance is one live list.
type Instance struct {
	spec    Spec
	tree    render.Tree
	backend query.Backend
	sched   loop.Scheduler
	log     *logging.Logger
	bus     *events.EventBus
	state   listState

	root   render.Node
	title  render.Node
	header render.Node
	body   render.Node

	items map[string]*Item
	order []string

	filter   models.Filter
	pending  *models.Filter
	selected string

	started     bool
	busy        bool
	reloading   bool
	paused      bool
	disposed    bool
	deferNext   bool
	exhausted   bool
	failed      error
	placeholder bool
	offset      int
	gen         int
	cancel      context.CancelFunc
	timer       loop.Handle
	stats       Stats
}

// New validates spec and renders the list. Filter and selection are
// restored from the store, and a continuous list also renders the records
// the store kept from the last cycle so its first cycle only patches them.
// Nothing is fetched until Start.
func New(spec Spec, deps Deps) (*Instance, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if deps.Tree == nil || deps.Backend == nil || deps.Scheduler == nil {
		return nil, errors.New("objlist: tree, backend and scheduler are required")
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNop(deps.Bus)
	}

	l := &Instance{
		spec:    spec.withDefaults(),
		tree:    deps.Tree,
		backend: deps.Backend,
		sched:   deps.Scheduler,
		log:     log.Named("objlist"),
		bus:     deps.Bus,
		state:   listState{store: deps.Store},
		items:   make(map[string]*Item),
	}
	if len(l.spec.FilterFields) > 0 {
		l.filter = l.state.filter()
	}
	l.selected = l.state.selected()

	l.build()
	if l.spec.Mode == ModeContinuous {
		l.restore()
	}
	l.updatePlaceholder()
	if deps.Parent != nil {
		l.tree.Append(deps.Parent, l.root)
	}
	return l, nil
}

// build creates the root, title, optional header and body nodes.
func (l *Instance) build() {
	t := l.tree
	l.root = t.Create(render.KindBox)
	t.SetAttr(l.root, render.AttrRole, render.RoleList)
	t.SetAttr(l.root, "name", l.spec.Name)
	t.AddClass(l.root, "object_list")

	l.title = t.Create(render.KindText)
	t.SetAttr(l.title, render.AttrRole, render.RoleTitle)
	t.SetContent(l.title, l.spec.Title)
	t.Append(l.root, l.title)

	if primary, ok := l.spec.field(l.spec.Primary); ok && primary.Title != "" {
		l.header = t.Create(render.KindBox)
		t.SetAttr(l.header, render.AttrRole, render.RoleHeader)
		t.AddClass(l.header, "list_header")
		for _, f := range l.spec.Fields {
			c := t.Create(render.KindText)
			t.SetAttr(c, render.AttrRole, render.RoleCell)
			t.SetAttr(c, render.AttrField, f.Name)
			if f.Weight > 0 {
				t.SetAttr(c, render.AttrWeight, strconv.FormatFloat(f.Weight, 'f', -1, 64))
			}
			t.SetContent(c, f.Title)
			t.Append(l.header, c)
		}
		t.Append(l.root, l.header)
	}

	l.body = t.Create(render.KindBox)
	t.SetAttr(l.body, render.AttrRole, render.RoleBody)
	if l.spec.ListDrop != nil {
		t.DropTarget(l.body, l.spec.ListDrop)
	}
	t.Append(l.root, l.body)
}

// restore renders the records saved by a previous instance over the same
// store. Saved records that no longer pass the spec are dropped.
func (l *Instance) restore() {
	records := l.state.records()
	if len(records) == 0 {
		return
	}
	for _, id := range l.state.order() {
		r, ok := records[id]
		if !ok || l.items[id] != nil {
			continue
		}
		if got, err := r.Identity(l.spec.Identity); err != nil || got != id {
			continue
		}
		texts, err := l.spec.checkRecord(r.Fields)
		if err != nil {
			continue
		}
		l.addItem(id, r, texts)
		l.order = append(l.order, id)
	}
	l.log.Debug().Str("list", l.spec.Name).Int("items", len(l.order)).Msg("Restored list items")
}

// Start runs the first cycle. A chunked list with DeferFirstFetch fetches
// nothing in it and loads on the follow-up. Starting twice is a no-op.
func (l *Instance) Start() error {
	if l.disposed {
		return ErrDisposed
	}
	if l.started {
		return nil
	}
	l.started = true
	l.deferNext = l.spec.Mode == ModeChunked && l.spec.DeferFirstFetch
	l.log.Debug().Str("list", l.spec.Name).Str("mode", l.spec.Mode.String()).Msg("Starting list")
	l.cycle()
	return nil
}

// Update runs a cycle now. A chunked list fetches its next chunk even
// when its source looked exhausted.
func (l *Instance) Update() error {
	if l.disposed {
		return ErrDisposed
	}
	if l.busy {
		return ErrBusy
	}
	l.started = true
	l.cancelTimer()
	l.cycle()
	return nil
}

// Reload drops every item and loads the list again from the start. While
// a fetch is in flight it is cancelled and the reload runs once it has
// returned; its records are discarded.
func (l *Instance) Reload() error {
	if l.disposed {
		return ErrDisposed
	}
	l.started = true
	if l.busy {
		l.reloading = true
		if l.cancel != nil {
			l.cancel()
		}
		return nil
	}
	l.cancelTimer()
	l.reset()
	l.cycle()
	return nil
}

// reset drops every item and rewinds a chunked load.
func (l *Instance) reset() {
	l.clearItems()
	l.offset = 0
	l.exhausted = false
	l.failed = nil
}

// Evict removes items locally without a fetch. Unknown identities are
// ignored. A continuous list brings them back on its next cycle if the
// backend still returns them.
func (l *Instance) Evict(ids ...string) {
	if l.disposed {
		return
	}
	evict := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := l.items[id]; ok {
			evict[id] = true
		}
	}
	if len(evict) == 0 {
		return
	}
	remaining := l.order[:0]
	for _, id := range l.order {
		if evict[id] {
			l.removeItem(id)
			continue
		}
		remaining = append(remaining, id)
	}
	l.order = remaining
	l.persist()
}

// Pause stops the refresh timer. A fetch in flight still completes.
func (l *Instance) Pause() {
	if l.disposed || l.paused {
		return
	}
	l.paused = true
	l.cancelTimer()
}

// Resume restarts refreshing with an immediate cycle unless a fetch is in
// flight or a chunked list is fully loaded.
func (l *Instance) Resume() {
	if l.disposed || !l.paused {
		return
	}
	l.paused = false
	if !l.started || l.busy {
		return
	}
	if l.spec.Mode == ModeChunked && l.exhausted {
		return
	}
	l.cancelTimer()
	l.cycle()
}

// Dispose stops the list, drops any fetch in flight, clears its stored
// state and destroys its nodes. It is idempotent.
func (l *Instance) Dispose() {
	if l.disposed {
		return
	}
	l.disposed = true
	l.cancelTimer()
	l.abort()
	l.pending = nil
	l.reloading = false
	l.state.clear()
	l.tree.Destroy(l.root)
	l.items = make(map[string]*Item)
	l.order = nil
	l.log.Debug().Str("list", l.spec.Name).Msg("Disposed list")
}

// clearItems destroys every item node.
func (l *Instance) clearItems() {
	for _, id := range l.order {
		l.removeItem(id)
	}
	l.order = nil
}

func (l *Instance) publishAction(id, action string, visible bool) {
	l.bus.Publish(&events.ActionEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventActionToggled, Time: l.now()},
		List:      l.spec.Name,
		Identity:  id,
		Action:    action,
		Visible:   visible,
	})
}

// Name returns the list name.
func (l *Instance) Name() string { return l.spec.Name }

// Spec returns the list configuration with defaults applied.
func (l *Instance) Spec() Spec { return l.spec }

// Node returns the list root node.
func (l *Instance) Node() render.Node { return l.root }

// Body returns the node holding the item nodes.
func (l *Instance) Body() render.Node { return l.body }

// Items returns the items in render order.
func (l *Instance) Items() []*Item {
	out := make([]*Item, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.items[id])
	}
	return out
}

// Identities returns the item identities in render order.
func (l *Instance) Identities() []string {
	return append([]string(nil), l.order...)
}

// Item returns the item of id, or nil.
func (l *Instance) Item(id string) *Item { return l.items[id] }

// Selected returns the selected identity, which may have no item yet.
func (l *Instance) Selected() string { return l.selected }

// Filter returns a copy of the active filter.
func (l *Instance) Filter() models.Filter { return l.filter.Clone() }

// Busy reports whether a fetch is in flight.
func (l *Instance) Busy() bool { return l.busy }

// Loaded reports whether a chunked list has nothing more to load, either
// because its source is exhausted or because a fetch failed.
func (l *Instance) Loaded() bool { return l.exhausted }

// LoadErr returns the error that stopped a chunked load, or nil.
func (l *Instance) LoadErr() error { return l.failed }

// Disposed reports whether Dispose was called.
func (l *Instance) Disposed() bool { return l.disposed }

// Stats returns the work counters.
func (l *Instance) Stats() Stats { return l.stats }
