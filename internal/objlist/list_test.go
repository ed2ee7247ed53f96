package objlist

import (
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
	"github.com/rescale/livelist/internal/state"
)

type harness struct {
	tree  *render.MemTree
	mem   *query.Memory
	sched *loop.Manual
	sess  *state.Session
	bus   *events.EventBus
}

func newHarness() *harness {
	return &harness{
		tree:  render.NewMemTree(),
		mem:   query.NewMemory("id"),
		sched: loop.NewManual(),
		sess:  state.NewSession(),
		bus:   events.NewEventBus(500),
	}
}

func (h *harness) open(t *testing.T, spec Spec) *Instance {
	t.Helper()
	l, err := New(spec, Deps{
		Tree:      h.tree,
		Backend:   h.mem,
		Store:     h.sess.Scope(spec.Name),
		Scheduler: h.sched,
		Bus:       h.bus,
		Parent:    h.tree.Root(),
	})
	if err != nil {
		t.Fatalf("failed to create list: %v", err)
	}
	return l
}

// start runs the first cycle and applies its completion.
func (h *harness) start(t *testing.T, l *Instance) {
	t.Helper()
	if err := l.Start(); err != nil {
		t.Fatalf("failed to start list: %v", err)
	}
	h.sched.Flush()
}

func rec(id any, kv ...any) models.Record {
	fields := map[string]any{"id": id}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1]
	}
	return models.NewRecord("mem://"+models.ValueString(id), fields)
}

func albumSpec() Spec {
	return Spec{
		Name:     "albums",
		Title:    "Albums",
		Identity: "id",
		Fields: []Field{
			{Name: "name", Title: "Name", Weight: 3},
			{Name: "year", Title: "Year", Weight: 1},
		},
		Kinds: []string{"albums"},
	}
}

func renderOrder(h *harness, l *Instance) []string {
	var out []string
	for _, n := range h.tree.Children(l.Body()) {
		out = append(out, h.tree.Attr(n, render.AttrIdentity))
	}
	return out
}

func cellContent(h *harness, it *Item, field string) string {
	return h.tree.Content(it.cells[field].node)
}

func countEvents(ch <-chan events.Event) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

func TestNewValidatesSpec(t *testing.T) {
	h := newHarness()
	spec := albumSpec()
	spec.Identity = ""
	_, err := New(spec, Deps{Tree: h.tree, Backend: h.mem, Scheduler: h.sched})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}

	_, err = New(albumSpec(), Deps{Tree: h.tree, Scheduler: h.sched})
	if err == nil {
		t.Error("expected error without a backend")
	}
}

func TestContinuousIdentitySetFollowsFetch(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A"), rec("b", "name", "B"), rec("c", "name", "C")})
	l := h.open(t, albumSpec())
	h.start(t, l)

	want := []string{"a", "b", "c"}
	if got := l.Identities(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	rounds := [][]models.Record{
		{rec("c", "name", "C"), rec("d", "name", "D"), rec("a", "name", "A")},
		{rec("e", "name", "E")},
		{},
		{rec("f", "name", "F"), rec("e", "name", "E2"), rec("g", "name", "G")},
	}
	for _, round := range rounds {
		h.mem.Set("albums", round)
		if !h.sched.Fire() {
			t.Fatal("expected a pending refresh")
		}
		var want []string
		for _, r := range round {
			id, _ := r.Identity("id")
			want = append(want, id)
		}
		if got := l.Identities(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected identities %v, got %v", want, got)
		}
		if got := renderOrder(h, l); !reflect.DeepEqual(got, want) {
			t.Errorf("expected render order %v, got %v", want, got)
		}
	}
}

func TestRefreshInterval(t *testing.T) {
	h := newHarness()
	l := h.open(t, albumSpec())
	h.start(t, l)

	d, ok := h.sched.NextDelay()
	if !ok || d != constants.DefaultRefreshInterval {
		t.Errorf("expected refresh after %v, got %v (%v)", constants.DefaultRefreshInterval, d, ok)
	}

	h.sched.Advance(10 * constants.DefaultRefreshInterval)
	if got := l.Stats().Fetches; got != 11 {
		t.Errorf("expected 11 fetches, got %d", got)
	}
	if h.mem.Calls() != 11 {
		t.Errorf("expected 11 backend calls, got %d", h.mem.Calls())
	}
	for _, req := range h.mem.Requests() {
		if req.Offset != 0 || req.Limit != 0 {
			t.Errorf("expected unpaginated continuous fetch, got offset %d limit %d", req.Offset, req.Limit)
		}
	}
}

func TestReplaceScenario(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec(1, "name", "A"), rec(2, "name", "B"), rec(3, "name", "C")})
	created := h.bus.Subscribe(events.EventItemCreated)
	patched := h.bus.Subscribe(events.EventItemPatched)
	removed := h.bus.Subscribe(events.EventItemRemoved)

	l := h.open(t, albumSpec())
	h.start(t, l)
	countEvents(created)
	node2 := l.Item("2").Node()
	node3 := l.Item("3").Node()

	h.mem.Set("albums", []models.Record{rec(2, "name", "B2"), rec(3, "name", "C"), rec(4, "name", "D")})
	h.tree.ResetCounts()
	h.sched.Fire()

	if got := l.Identities(); !reflect.DeepEqual(got, []string{"2", "3", "4"}) {
		t.Errorf("expected order [2 3 4], got %v", got)
	}
	if l.Item("1") != nil {
		t.Error("expected item 1 removed")
	}
	if l.Item("2").Node() != node2 || l.Item("3").Node() != node3 {
		t.Error("expected surviving items to keep their nodes")
	}
	if got := cellContent(h, l.Item("2"), "name"); got != "B2" {
		t.Errorf("expected item 2 name B2, got %q", got)
	}
	// B2 plus both cells of the new item
	if h.tree.Count(render.OpContent) != 3 {
		t.Errorf("expected 3 content updates, got %d", h.tree.Count(render.OpContent))
	}
	if h.tree.Count(render.OpSwap) != 0 {
		t.Errorf("expected no swaps, got %d", h.tree.Count(render.OpSwap))
	}

	if n := countEvents(created); n != 1 {
		t.Errorf("expected 1 created event, got %d", n)
	}
	select {
	case ev := <-patched:
		ie := ev.(*events.ItemEvent)
		if ie.Identity != "2" || !reflect.DeepEqual(ie.Fields, []string{"name"}) {
			t.Errorf("expected patch of 2 name, got %s %v", ie.Identity, ie.Fields)
		}
	default:
		t.Error("expected a patched event")
	}
	if n := countEvents(patched); n != 0 {
		t.Errorf("expected a single patched event, got %d more", n)
	}
	if n := countEvents(removed); n != 1 {
		t.Errorf("expected 1 removed event, got %d", n)
	}
}

func TestUnchangedRefetchIsNoop(t *testing.T) {
	h := newHarness()
	spec := albumSpec()
	spec.Fields = append(spec.Fields, Field{Name: "done", Display: DisplayProgress})
	spec.Actions = []Action{{Name: "play"}, {Name: "delete"}}
	spec.ActionFilter = func(action, ref string, fields map[string]any) bool { return action == "play" }
	h.mem.Set("albums", []models.Record{rec("a", "name", "A", "year", 1999, "done", 30), rec("b", "name", "B", "year", 2001, "done", 80)})

	l := h.open(t, spec)
	h.start(t, l)

	h.tree.ResetCounts()
	h.sched.Fire()
	if h.tree.Mutations() != 0 {
		t.Errorf("expected no mutations on unchanged refetch, got %d", h.tree.Mutations())
	}

	h.mem.Update("albums", "b", func(f map[string]any) { f["done"] = 90 })
	h.sched.Fire()
	if h.tree.Mutations() != 1 || h.tree.Count(render.OpPercent) != 1 {
		t.Errorf("expected exactly one percent update, got %d mutations", h.tree.Mutations())
	}
	if got := h.tree.Percent(l.Item("b").cells["done"].node); got != 90 {
		t.Errorf("expected 90%%, got %v", got)
	}
}

func TestActionToggleEvents(t *testing.T) {
	h := newHarness()
	spec := albumSpec()
	spec.Actions = []Action{{Name: "play"}}
	spec.ActionFilter = func(action, ref string, fields map[string]any) bool { return fields["playable"] == true }
	toggled := h.bus.Subscribe(events.EventActionToggled)

	l := h.open(t, spec)
	var at []int
	for i, playable := range []bool{true, true, false, false, true} {
		h.mem.Set("albums", []models.Record{rec("a", "name", "A", "playable", playable)})
		if i == 0 {
			h.start(t, l)
		} else {
			h.sched.Fire()
		}
		if countEvents(toggled) > 0 {
			at = append(at, i)
		}
	}
	if !reflect.DeepEqual(at, []int{2, 4}) {
		t.Errorf("expected toggle events at [2 4], got %v", at)
	}
	if got := l.Item("a").VisibleActions(); !reflect.DeepEqual(got, []string{"play"}) {
		t.Errorf("expected play visible, got %v", got)
	}
}

func linkedLists(t *testing.T, h *harness) (*Instance, *Instance) {
	t.Helper()
	h.mem.Set("albums", []models.Record{rec(1, "name", "Blue", "artist", "Y"), rec(2, "name", "Kid A", "artist", "X")})
	h.mem.Set("tracks", []models.Record{
		rec("t1", "title", "Idioteque", "artist", "X"),
		rec("t2", "title", "River", "artist", "Y"),
		rec("t3", "title", "Optimistic", "artist", "X"),
	})

	b := h.open(t, Spec{
		Name:         "tracks",
		Title:        "Tracks",
		Identity:     "id",
		Fields:       []Field{{Name: "title"}},
		FilterFields: []string{"artist"},
		Kinds:        []string{"tracks"},
	})
	spec := albumSpec()
	spec.Link = b
	spec.LinkFields = []string{"artist"}
	a := h.open(t, spec)

	h.start(t, b)
	h.start(t, a)
	return a, b
}

func TestLinkScenario(t *testing.T) {
	h := newHarness()
	a, b := linkedLists(t, h)

	if len(b.Items()) != 0 {
		t.Fatalf("expected linked list empty before selection, got %v", b.Identities())
	}
	if h.tree.Attr(b.Body(), render.AttrPlaceholder) != constants.NoFilterPlaceholder {
		t.Error("expected placeholder on unfiltered linked list")
	}
	if !b.filterExpr().IsFalse() {
		t.Error("expected false expression before selection")
	}

	before := b.Stats().Fetches
	if err := a.Select("2"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	h.sched.Flush()

	if got := b.Stats().Fetches - before; got != 1 {
		t.Errorf("expected exactly one fetch on linked list, got %d", got)
	}
	if !b.Filter().Equal(models.Filter{"artist": "X"}) {
		t.Errorf("expected filter {artist:X}, got %v", b.Filter())
	}
	if got := b.Identities(); !reflect.DeepEqual(got, []string{"t1", "t3"}) {
		t.Errorf("expected [t1 t3], got %v", got)
	}
	if h.tree.Attr(b.Body(), render.AttrPlaceholder) != "" {
		t.Error("expected placeholder cleared")
	}
	if !h.tree.HasClass(a.Item("2").Node(), SelectedClass) {
		t.Error("expected item 2 selected")
	}

	// reselecting with an equal filter does not refetch
	before = b.Stats().Fetches
	_ = a.Select("2")
	h.sched.Flush()
	if b.Stats().Fetches != before {
		t.Errorf("expected no fetch for unchanged filter")
	}

	if err := a.Select("1"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	h.sched.Flush()
	if h.tree.HasClass(a.Item("2").Node(), SelectedClass) {
		t.Error("expected selection marker moved off item 2")
	}
	if got := b.Identities(); !reflect.DeepEqual(got, []string{"t2"}) {
		t.Errorf("expected [t2], got %v", got)
	}
}

func TestSelectWithoutLink(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A"), rec("b", "name", "B")})
	changed := h.bus.Subscribe(events.EventSelectionChanged)
	l := h.open(t, albumSpec())
	h.start(t, l)

	if !h.tree.Fire(l.Item("b").Node(), render.EventClick) {
		t.Fatal("expected click handler on item")
	}
	if l.Selected() != "b" {
		t.Errorf("expected b selected, got %q", l.Selected())
	}
	if got := h.sess.Scope("albums").Load("selected", ""); got != "b" {
		t.Errorf("expected persisted selection b, got %v", got)
	}
	if err := l.Select("zz"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
	if n := countEvents(changed); n != 1 {
		t.Errorf("expected 1 selection event, got %d", n)
	}
	if l.Stats().Fetches != 1 {
		t.Errorf("expected selection without link not to fetch")
	}
}

func chunkSpec(size int) Spec {
	spec := albumSpec()
	spec.Mode = ModeChunked
	spec.ChunkSize = size
	return spec
}

func seedAlbums(h *harness, n int) {
	records := make([]models.Record, n)
	for i := range records {
		records[i] = rec(i, "name", "Album "+strconv.Itoa(i))
	}
	h.mem.Set("albums", records)
}

func TestChunkedScenario(t *testing.T) {
	h := newHarness()
	seedAlbums(h, 112)
	done := h.bus.Subscribe(events.EventLoadComplete)

	l := h.open(t, chunkSpec(50))
	h.start(t, l)
	if got := len(l.Items()); got != 50 {
		t.Fatalf("expected 50 items after first chunk, got %d", got)
	}

	h.sched.RunUntilIdle(10)
	if got := l.Stats().Fetches; got != 3 {
		t.Errorf("expected 3 fetches, got %d", got)
	}
	if h.sched.Pending() != 0 {
		t.Errorf("expected no further cycle scheduled, got %d", h.sched.Pending())
	}
	if got := len(l.Items()); got != 112 {
		t.Errorf("expected 112 items, got %d", got)
	}
	if !l.Loaded() {
		t.Error("expected list loaded")
	}
	if n := countEvents(done); n != 1 {
		t.Errorf("expected 1 load complete event, got %d", n)
	}

	reqs := h.mem.Requests()
	for i, want := range []int{0, 50, 100} {
		if reqs[i].Offset != want || reqs[i].Limit != 50 {
			t.Errorf("request %d: expected offset %d limit 50, got %d/%d", i, want, reqs[i].Offset, reqs[i].Limit)
		}
	}
	ids := l.Identities()
	for i := 0; i < 112; i++ {
		if ids[i] != strconv.Itoa(i) {
			t.Fatalf("expected item %d at position %d, got %s", i, i, ids[i])
		}
	}
}

func TestChunkedDeferFirstFetch(t *testing.T) {
	h := newHarness()
	seedAlbums(h, 112)
	spec := chunkSpec(50)
	spec.DeferFirstFetch = true

	l := h.open(t, spec)
	h.start(t, l)
	if l.Stats().Fetches != 0 || len(l.Items()) != 0 {
		t.Fatalf("expected deferred first cycle to fetch nothing")
	}
	if d, ok := h.sched.NextDelay(); !ok || d != 0 {
		t.Fatalf("expected zero delay follow-up, got %v %v", d, ok)
	}

	h.sched.RunUntilIdle(10)
	st := l.Stats()
	if st.Fetches != 3 || st.Cycles != 4 {
		t.Errorf("expected 3 fetches over 4 cycles, got %d/%d", st.Fetches, st.Cycles)
	}
	if len(l.Items()) != 112 {
		t.Errorf("expected 112 items, got %d", len(l.Items()))
	}
}

func TestChunkedUnlimited(t *testing.T) {
	h := newHarness()
	seedAlbums(h, 30)
	l := h.open(t, chunkSpec(0))
	h.start(t, l)

	if len(l.Items()) != 30 || !l.Loaded() || h.sched.Pending() != 0 {
		t.Errorf("expected one pass loading 30 items, got %d loaded=%v pending=%d", len(l.Items()), l.Loaded(), h.sched.Pending())
	}

	// an explicit update still fetches
	h.mem.Put("albums", rec(30, "name", "Late"))
	if err := l.Update(); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	h.sched.Flush()
	if l.Stats().Fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", l.Stats().Fetches)
	}
}

func TestChunkedIdentitySetIsUnion(t *testing.T) {
	h := newHarness()
	seedAlbums(h, 7)
	l := h.open(t, chunkSpec(3))
	h.start(t, l)

	// records removed at the source after being fetched stay listed
	h.mem.Delete("albums", "0", "1")
	h.sched.RunUntilIdle(10)

	want := map[string]bool{}
	for _, id := range []string{"0", "1", "2", "3", "4", "5", "6"} {
		want[id] = true
	}
	got := l.Identities()
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected identity %s", id)
		}
	}
	// second chunk starts at offset 3 of the shrunk source: 5 and 6
	if len(got) != 5 {
		t.Errorf("expected union of fetched chunks (5 items), got %v", got)
	}
}

func TestFetchFailureContinuous(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A")})
	failed := h.bus.Subscribe(events.EventFetchFailed)
	l := h.open(t, albumSpec())
	h.start(t, l)

	h.mem.FailWith(errors.New("backend down"))
	h.mem.Set("albums", nil)
	h.tree.ResetCounts()
	h.sched.Fire()

	if h.tree.Mutations() != 0 {
		t.Errorf("expected failed cycle not to mutate, got %d", h.tree.Mutations())
	}
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected items kept, got %v", got)
	}
	if h.sched.Pending() != 1 {
		t.Errorf("expected refresh rescheduled after failure")
	}
	if l.Stats().Failures != 1 {
		t.Errorf("expected 1 failure, got %d", l.Stats().Failures)
	}
	if n := countEvents(failed); n != 1 {
		t.Errorf("expected 1 fetch failed event, got %d", n)
	}

	h.mem.FailWith(nil)
	h.sched.Fire()
	if len(l.Items()) != 0 {
		t.Errorf("expected recovery to reconcile, got %v", l.Identities())
	}
}

func TestFetchFailureChunked(t *testing.T) {
	h := newHarness()
	seedAlbums(h, 10)
	h.mem.FailWith(errors.New("backend down"))
	done := h.bus.Subscribe(events.EventLoadComplete)
	l := h.open(t, chunkSpec(5))
	h.start(t, l)

	if h.sched.Pending() != 0 {
		t.Errorf("expected chunked load to stop on failure")
	}
	if l.Busy() {
		t.Error("expected list idle after failure")
	}
	if len(l.Items()) != 0 {
		t.Errorf("expected no items, got %d", len(l.Items()))
	}
	if !l.Loaded() {
		t.Error("expected nothing more to load after failure")
	}
	if l.LoadErr() == nil {
		t.Error("expected load error recorded")
	}

	select {
	case ev := <-done:
		ce, ok := ev.(*events.CycleEvent)
		if !ok || ce.Error == nil || ce.List != "albums" {
			t.Errorf("expected load complete carrying the error, got %+v", ev)
		}
	default:
		t.Fatal("expected load complete event")
	}

	h.mem.FailWith(nil)
	if err := l.Update(); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	h.sched.Flush()
	if l.LoadErr() != nil {
		t.Errorf("expected load error cleared, got %v", l.LoadErr())
	}
	if got := len(l.Items()); got != 5 {
		t.Errorf("expected 5 items after retry, got %d", got)
	}
	if l.Loaded() {
		t.Error("expected more to load after a full chunk")
	}
}

func TestUpdateWhileBusy(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A")})
	l := h.open(t, albumSpec())

	h.sched.Hold = true
	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !l.Busy() {
		t.Fatal("expected list busy while fetch is held")
	}
	if err := l.Update(); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	h.sched.Hold = false
	h.sched.Release()
	if l.Busy() {
		t.Error("expected list idle after completion")
	}
	if len(l.Items()) != 1 {
		t.Errorf("expected 1 item, got %d", len(l.Items()))
	}
	if err := l.Update(); err != nil {
		t.Errorf("expected update to succeed, got %v", err)
	}
}

func TestSetFilterWhileBusyIsDeferred(t *testing.T) {
	h := newHarness()
	h.mem.Set("tracks", []models.Record{rec("t1", "title", "A", "artist", "X"), rec("t2", "title", "B", "artist", "Y")})
	l := h.open(t, Spec{
		Name:         "tracks",
		Identity:     "id",
		Fields:       []Field{{Name: "title"}},
		FilterFields: []string{"artist"},
		Kinds:        []string{"tracks"},
	})

	h.sched.Hold = true
	_ = l.Start()
	l.SetFilter(models.Filter{"artist": "Y"})
	if l.Filter() != nil {
		t.Errorf("expected filter deferred, got %v", l.Filter())
	}

	h.sched.Hold = false
	h.sched.Release()
	if !l.Filter().Equal(models.Filter{"artist": "Y"}) {
		t.Errorf("expected deferred filter applied, got %v", l.Filter())
	}
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"t2"}) {
		t.Errorf("expected [t2], got %v", got)
	}
	if l.Stats().Fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", l.Stats().Fetches)
	}
}

func TestSetFilterIgnoredWithoutFilterFields(t *testing.T) {
	h := newHarness()
	l := h.open(t, albumSpec())
	h.start(t, l)

	l.SetFilter(models.Filter{"artist": "X"})
	h.sched.Flush()
	if l.Filter() != nil || l.Stats().Fetches != 1 {
		t.Errorf("expected filter ignored, got %v after %d fetches", l.Filter(), l.Stats().Fetches)
	}
	if l.filterExpr().Op() != models.OpAll {
		t.Errorf("expected match-all expression, got %s", l.filterExpr())
	}
}

func TestSetFilterResetsChunkedList(t *testing.T) {
	h := newHarness()
	var records []models.Record
	for i := 0; i < 6; i++ {
		artist := "X"
		if i%2 == 1 {
			artist = "Y"
		}
		records = append(records, rec(i, "name", "N", "artist", artist))
	}
	h.mem.Set("albums", records)
	spec := chunkSpec(2)
	spec.FilterFields = []string{"artist"}
	l := h.open(t, spec)

	l.SetFilter(models.Filter{"artist": "X"})
	h.start(t, l)
	h.sched.RunUntilIdle(10)
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"0", "2", "4"}) {
		t.Fatalf("expected [0 2 4], got %v", got)
	}

	l.SetFilter(models.Filter{"artist": "Y"})
	h.sched.Flush()
	h.sched.RunUntilIdle(10)
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"1", "3", "5"}) {
		t.Errorf("expected [1 3 5], got %v", got)
	}
}

func TestDisposeDropsStaleCompletion(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A")})
	l := h.open(t, albumSpec())

	h.sched.Hold = true
	_ = l.Start()
	root := l.Node()
	l.Dispose()
	l.Dispose()

	h.sched.Hold = false
	h.sched.Release()

	if h.tree.Alive(root) {
		t.Error("expected root destroyed")
	}
	if len(l.Items()) != 0 {
		t.Errorf("expected stale completion dropped, got %v", l.Identities())
	}
	if h.sched.Pending() != 0 {
		t.Errorf("expected no timers after dispose, got %d", h.sched.Pending())
	}
	if h.sess.Len("albums") != 0 {
		t.Errorf("expected store cleared")
	}
	if err := l.Update(); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
}

func TestDisposeCancelsTimer(t *testing.T) {
	h := newHarness()
	l := h.open(t, albumSpec())
	h.start(t, l)
	if h.sched.Pending() != 1 {
		t.Fatalf("expected a refresh timer")
	}
	l.Dispose()
	if h.sched.Pending() != 0 {
		t.Errorf("expected timer cancelled")
	}
	if h.sched.Fire() {
		t.Error("expected nothing to fire")
	}
}

func TestMalformedRecords(t *testing.T) {
	h := newHarness()
	spec := albumSpec()
	spec.Fields[1].Transform = func(v any) (string, error) {
		n, ok := models.Number(v)
		if !ok {
			return "", errors.New("not a year")
		}
		return strconv.Itoa(int(n)), nil
	}
	skipped := h.bus.Subscribe(events.EventRecordSkipped)
	h.mem.Set("albums", []models.Record{rec("a", "name", "A", "year", 1999), rec("b", "name", "B", "year", 2001)})
	l := h.open(t, spec)
	h.start(t, l)

	h.mem.Set("albums", []models.Record{
		models.NewRecord("mem://x", map[string]any{"name": "no id"}),
		rec("b", "name", "B2", "year", 2002),
		rec("a", "name", "A2", "year", "bad"),
		rec("b", "name", "dup", "year", 2003),
		rec("c", "name", "C", "year", "bad"),
	})
	h.sched.Fire()

	if got := l.Identities(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("expected [b a], got %v", got)
	}
	if got := cellContent(h, l.Item("a"), "name"); got != "A" {
		t.Errorf("expected malformed record to leave item a untouched, got %q", got)
	}
	if got := cellContent(h, l.Item("b"), "name"); got != "B2" {
		t.Errorf("expected first b record to win, got %q", got)
	}
	if n := countEvents(skipped); n != 4 {
		t.Errorf("expected 4 skipped records, got %d", n)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness()
	l := h.open(t, albumSpec())
	h.start(t, l)

	l.Pause()
	if h.sched.Pending() != 0 {
		t.Errorf("expected timer cancelled on pause")
	}
	h.sched.Advance(10 * constants.DefaultRefreshInterval)
	if l.Stats().Fetches != 1 {
		t.Errorf("expected no fetch while paused, got %d", l.Stats().Fetches)
	}

	l.Resume()
	h.sched.Flush()
	if l.Stats().Fetches != 2 {
		t.Errorf("expected immediate fetch on resume, got %d", l.Stats().Fetches)
	}
	if h.sched.Pending() != 1 {
		t.Errorf("expected refresh rescheduled")
	}
}

func TestReloadAndEvict(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A"), rec("b", "name", "B"), rec("c", "name", "C")})
	l := h.open(t, albumSpec())
	h.start(t, l)

	l.Evict("b", "missing")
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("expected [a c] after evict, got %v", got)
	}
	h.sched.Fire()
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("expected b back after refresh, got %v", got)
	}

	old := l.Item("a").Node()
	if err := l.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	h.sched.Flush()
	if h.tree.Alive(old) {
		t.Error("expected old nodes destroyed on reload")
	}
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c] after reload, got %v", got)
	}
	if h.sched.Pending() != 1 {
		t.Errorf("expected a single refresh timer, got %d", h.sched.Pending())
	}
}

func TestReloadWaitsForInflightFetch(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A")})
	l := h.open(t, albumSpec())

	h.sched.Hold = true
	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := l.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if h.sched.Held() != 1 {
		t.Errorf("expected one query outstanding after reload, got %d", h.sched.Held())
	}
	if !l.Busy() {
		t.Error("expected list busy until the running fetch returns")
	}

	// The cancelled fetch returns and the reload starts the next one.
	h.sched.Release()
	if h.sched.Held() != 1 {
		t.Errorf("expected one query outstanding after the first returned, got %d", h.sched.Held())
	}
	if h.mem.Calls() != 1 {
		t.Errorf("expected 1 query run so far, got %d", h.mem.Calls())
	}
	if len(l.Items()) != 0 {
		t.Errorf("expected records of the cancelled fetch discarded, got %v", l.Identities())
	}

	h.sched.Hold = false
	h.sched.Release()
	if got := l.Identities(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected [a], got %v", got)
	}
	if h.mem.Calls() != 2 {
		t.Errorf("expected 2 queries, got %d", h.mem.Calls())
	}
	if l.Stats().Failures != 0 {
		t.Errorf("expected the cancelled fetch not counted as a failure, got %d", l.Stats().Failures)
	}
	if h.sched.Pending() != 1 {
		t.Errorf("expected one refresh timer, got %d", h.sched.Pending())
	}
}

func TestReloadWhileBusyAppliesPendingFilter(t *testing.T) {
	h := newHarness()
	h.mem.Set("tracks", []models.Record{rec("t1", "title", "A", "artist", "X"), rec("t2", "title", "B", "artist", "Y")})
	l := h.open(t, Spec{
		Name:         "tracks",
		Identity:     "id",
		Fields:       []Field{{Name: "title"}},
		FilterFields: []string{"artist"},
		Kinds:        []string{"tracks"},
	})
	l.SetFilter(models.Filter{"artist": "X"})

	h.sched.Hold = true
	_ = l.Start()
	_ = l.Reload()
	l.SetFilter(models.Filter{"artist": "Y"})
	h.sched.Hold = false
	h.sched.Release()

	if got := l.Identities(); !reflect.DeepEqual(got, []string{"t2"}) {
		t.Errorf("expected [t2] under the new filter, got %v", got)
	}
	if h.sched.Held() != 0 {
		t.Errorf("expected no query outstanding, got %d", h.sched.Held())
	}
}

func TestStructureAndDrag(t *testing.T) {
	h := newHarness()
	var dropped []string
	var itemDrops []string
	var opened []string
	spec := albumSpec()
	spec.ListDrop = func(ref string) { dropped = append(dropped, ref) }
	spec.ItemDrop = func(it *Item, ref string) { itemDrops = append(itemDrops, it.Identity()+"<"+ref) }
	spec.ItemEvents = map[string]func(*Item){
		render.EventDoubleClick: func(it *Item) { opened = append(opened, it.Ref()) },
	}
	h.mem.Set("albums", []models.Record{rec("a", "name", "Blue")})
	l := h.open(t, spec)
	h.start(t, l)

	if h.tree.Find(l.Node(), render.AttrRole, render.RoleTitle) == nil {
		t.Error("expected title node")
	}
	if h.tree.Find(l.Node(), render.AttrRole, render.RoleHeader) == nil {
		t.Error("expected header row when the primary field has a title")
	}

	it := l.Item("a")
	ref, label, ok := h.tree.DragData(it.Node())
	if !ok || ref != "mem://a" || label != "Blue" {
		t.Errorf("expected drag data mem://a Blue, got %q %q %v", ref, label, ok)
	}

	h.tree.Drop(l.Body(), "s3://bucket/x")
	h.tree.Drop(it.Node(), "s3://bucket/y")
	h.tree.Fire(it.Node(), render.EventDoubleClick)
	if !reflect.DeepEqual(dropped, []string{"s3://bucket/x"}) {
		t.Errorf("expected list drop, got %v", dropped)
	}
	if !reflect.DeepEqual(itemDrops, []string{"a<s3://bucket/y"}) {
		t.Errorf("expected item drop, got %v", itemDrops)
	}
	if !reflect.DeepEqual(opened, []string{"mem://a"}) {
		t.Errorf("expected item event, got %v", opened)
	}

	h.mem.Update("albums", "a", func(f map[string]any) { f["name"] = "Blue (remaster)" })
	h.sched.Fire()
	if _, label, _ := h.tree.DragData(it.Node()); label != "Blue (remaster)" {
		t.Errorf("expected drag label updated, got %q", label)
	}
}

func TestNoHeaderWithoutPrimaryTitle(t *testing.T) {
	h := newHarness()
	spec := albumSpec()
	spec.Fields = []Field{{Name: "name"}, {Name: "year", Title: "Year"}}
	l := h.open(t, spec)
	if h.tree.Find(l.Node(), render.AttrRole, render.RoleHeader) != nil {
		t.Error("expected no header row")
	}
	if h.tree.Find(l.Node(), render.AttrRole, render.RoleTitle) == nil {
		t.Error("expected title node")
	}
}

func TestRestoreFromStore(t *testing.T) {
	h := newHarness()
	h.mem.Set("tracks", []models.Record{rec("t1", "title", "A", "artist", "X"), rec("t2", "title", "B", "artist", "X")})
	spec := Spec{
		Name:         "tracks",
		Identity:     "id",
		Fields:       []Field{{Name: "title"}},
		FilterFields: []string{"artist"},
		Kinds:        []string{"tracks"},
	}
	first := h.open(t, spec)
	h.start(t, first)
	first.SetFilter(models.Filter{"artist": "X"})
	h.sched.Flush()
	if err := first.Select("t2"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	records, _ := h.sess.Scope("tracks").Load("records", nil).(map[string]models.Record)
	if len(records) != 2 {
		t.Errorf("expected 2 persisted records, got %d", len(records))
	}

	other := &harness{tree: render.NewMemTree(), mem: h.mem, sched: loop.NewManual(), sess: h.sess}
	second := other.open(t, spec)
	if !second.Filter().Equal(models.Filter{"artist": "X"}) || second.Selected() != "t2" {
		t.Fatalf("expected restored filter and selection, got %v %q", second.Filter(), second.Selected())
	}
	if other.tree.Attr(second.Body(), render.AttrPlaceholder) != "" {
		t.Error("expected no placeholder with a restored filter")
	}
	other.start(t, second)
	if !other.tree.HasClass(second.Item("t2").Node(), SelectedClass) {
		t.Error("expected restored selection marker")
	}
	if other.tree.HasClass(second.Item("t1").Node(), SelectedClass) {
		t.Error("expected only t2 marked")
	}
}

func TestReopenPatchesStoredItems(t *testing.T) {
	h := newHarness()
	h.mem.Set("albums", []models.Record{rec("a", "name", "A"), rec("b", "name", "B"), rec("c", "name", "C")})
	first := h.open(t, albumSpec())
	h.start(t, first)
	if err := first.Select("b"); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	bus := events.NewEventBus(100)
	created := bus.Subscribe(events.EventItemCreated)
	cycles := bus.Subscribe(events.EventCycleComplete)
	other := &harness{tree: render.NewMemTree(), mem: h.mem, sched: loop.NewManual(), sess: h.sess, bus: bus}
	second := other.open(t, albumSpec())

	if got := second.Identities(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected stored items rendered before start, got %v", got)
	}
	if !other.tree.HasClass(second.Item("b").Node(), SelectedClass) {
		t.Error("expected restored item carrying the selection")
	}
	nodeA := second.Item("a").Node()
	countEvents(created)

	h.mem.Update("albums", "c", func(f map[string]any) { f["name"] = "C2" })
	other.start(t, second)

	if n := countEvents(created); n != 0 {
		t.Errorf("expected no items created on the first cycle, got %d", n)
	}
	select {
	case ev := <-cycles:
		ce := ev.(*events.CycleEvent)
		if ce.Created != 0 || ce.Updated != 1 || ce.Removed != 0 {
			t.Errorf("expected 0 created 1 updated 0 removed, got %d/%d/%d", ce.Created, ce.Updated, ce.Removed)
		}
	default:
		t.Fatal("expected cycle complete event")
	}
	if second.Item("a").Node() != nodeA {
		t.Error("expected restored node kept")
	}
	if got := cellContent(other, second.Item("c"), "name"); got != "C2" {
		t.Errorf("expected patched name C2, got %q", got)
	}
}

func TestReopenChunkedStartsEmpty(t *testing.T) {
	h := newHarness()
	seedAlbums(h, 4)
	first := h.open(t, chunkSpec(2))
	h.start(t, first)
	if len(first.Items()) != 2 {
		t.Fatalf("expected 2 items, got %d", len(first.Items()))
	}

	other := &harness{tree: render.NewMemTree(), mem: h.mem, sched: loop.NewManual(), sess: h.sess}
	second := other.open(t, chunkSpec(2))
	if len(second.Items()) != 0 {
		t.Errorf("expected a chunked list to load from the start, got %v", second.Identities())
	}
}

func TestTransformRunsOncePerRecord(t *testing.T) {
	h := newHarness()
	calls := 0
	spec := albumSpec()
	spec.Fields[1].Transform = func(v any) (string, error) {
		calls++
		return "year " + models.ValueString(v), nil
	}
	h.mem.Set("albums", []models.Record{rec("a", "name", "A", "year", 1997), rec("b", "name", "B", "year", 2000)})
	l := h.open(t, spec)
	h.start(t, l)

	if calls != 2 {
		t.Errorf("expected 2 transform calls, got %d", calls)
	}
	if got := cellContent(h, l.Item("a"), "year"); got != "year 1997" {
		t.Errorf("expected transformed text, got %q", got)
	}
}
