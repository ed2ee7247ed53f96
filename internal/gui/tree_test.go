package gui

import (
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/objlist"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
	"github.com/rescale/livelist/internal/state"
)

func TestTreeKeepsObjectsInOrder(t *testing.T) {
	test.NewTempApp(t)
	tree := NewTree()

	parent := tree.Create(render.KindBox)
	var kids []render.Node
	for i := 0; i < 3; i++ {
		n := tree.Create(render.KindText)
		tree.Append(parent, n)
		kids = append(kids, n)
	}
	tree.Swap(kids[0], kids[2])

	box := tree.node(parent).box
	want := []render.Node{kids[2], kids[1], kids[0]}
	for i, n := range tree.Children(parent) {
		if n != want[i] {
			t.Fatalf("expected child %d to be %s, got %s", i, want[i].Key(), n.Key())
		}
		if box.Objects[i] != tree.CanvasObject(n) {
			t.Errorf("expected container object %d to match child", i)
		}
	}

	tree.Destroy(kids[1])
	if len(box.Objects) != 2 || len(tree.Children(parent)) != 2 {
		t.Errorf("expected 2 children after destroy, got %d objects", len(box.Objects))
	}
	if tree.CanvasObject(kids[1]) != nil {
		t.Error("expected destroyed node to have no object")
	}

	extra := tree.Create(render.KindText)
	tree.Insert(parent, extra, 1)
	if tree.Children(parent)[1] != extra || box.Objects[1] != tree.CanvasObject(extra) {
		t.Error("expected inserted node at index 1")
	}
}

func TestTreeWidgets(t *testing.T) {
	test.NewTempApp(t)
	tree := NewTree()

	label := tree.Create(render.KindText)
	tree.SetContent(label, "Kid A")
	tree.SetStyle(label, "bold italic")
	l := tree.CanvasObject(label).(*widget.Label)
	if l.Text != "Kid A" || !l.TextStyle.Bold || !l.TextStyle.Italic {
		t.Errorf("expected bold italic Kid A, got %q %+v", l.Text, l.TextStyle)
	}

	bar := tree.Create(render.KindProgress)
	tree.SetPercent(bar, 42)
	if v := tree.CanvasObject(bar).(*widget.ProgressBar).Value; v != 42 {
		t.Errorf("expected 42, got %v", v)
	}

	icon := tree.Create(render.KindIcon)
	tree.SetContent(icon, "play")
	clicks := 0
	tree.On(icon, render.EventClick, func() { clicks++ })
	test.Tap(tree.CanvasObject(icon).(*widget.Button))
	if clicks != 1 {
		t.Errorf("expected 1 click, got %d", clicks)
	}

	tree.AddClass(icon, render.ClassHidden)
	if tree.CanvasObject(icon).Visible() {
		t.Error("expected hidden icon")
	}
	tree.RemoveClass(icon, render.ClassHidden)
	if !tree.CanvasObject(icon).Visible() {
		t.Error("expected visible icon")
	}
}

func TestTreeBoxEvents(t *testing.T) {
	test.NewTempApp(t)
	tree := NewTree()

	item := tree.Create(render.KindBox)
	var got []string
	tree.On(item, render.EventClick, func() { got = append(got, "click") })
	tree.On(item, render.EventDoubleClick, func() { got = append(got, "dblclick") })

	hit := tree.CanvasObject(item).(*hitBox)
	test.Tap(hit)
	test.DoubleTap(hit)
	if len(got) != 2 || got[0] != "click" || got[1] != "dblclick" {
		t.Errorf("expected click then dblclick, got %v", got)
	}

	tree.AddClass(item, constants.SelectedClass)
	if !tree.node(item).back.Visible() {
		t.Error("expected selection highlight")
	}
	tree.RemoveClass(item, constants.SelectedClass)
	if tree.node(item).back.Visible() {
		t.Error("expected highlight removed")
	}

	var dropped string
	tree.DropTarget(item, func(ref string) { dropped = ref })
	if !tree.Drop(item, "s3://bucket/key") || dropped != "s3://bucket/key" {
		t.Errorf("expected drop delivered, got %q", dropped)
	}
}

func TestTreePlaceholder(t *testing.T) {
	test.NewTempApp(t)
	tree := NewTree()

	body := tree.Create(render.KindBox)
	tree.SetAttr(body, render.AttrPlaceholder, "no filter...")
	hint := tree.node(body).hint
	if hint == nil || !hint.Visible() || hint.Text != "no filter..." {
		t.Fatal("expected placeholder shown on empty body")
	}

	child := tree.Create(render.KindText)
	tree.Append(body, child)
	if hint.Visible() {
		t.Error("expected placeholder hidden with children")
	}
	tree.Destroy(child)
	if !hint.Visible() {
		t.Error("expected placeholder back on empty body")
	}
	tree.SetAttr(body, render.AttrPlaceholder, "")
	if hint.Visible() {
		t.Error("expected placeholder hidden once cleared")
	}
}

func TestWeightLayout(t *testing.T) {
	test.NewTempApp(t)
	tree := NewTree()

	row := tree.Create(render.KindBox)
	tree.SetAttr(row, render.AttrRole, render.RoleItem)
	wide := tree.Create(render.KindText)
	tree.SetAttr(wide, render.AttrWeight, "3")
	narrow := tree.Create(render.KindText)
	tree.SetAttr(narrow, render.AttrWeight, "1")
	tree.Append(row, wide)
	tree.Append(row, narrow)

	box := tree.node(row).box
	box.Layout.Layout(box.Objects, fyne.NewSize(400, 30))
	w1 := tree.CanvasObject(wide).Size().Width
	w2 := tree.CanvasObject(narrow).Size().Width
	if w1 <= w2*2 {
		t.Errorf("expected weight 3 column much wider than weight 1, got %v and %v", w1, w2)
	}
	if tree.CanvasObject(narrow).Position().X <= tree.CanvasObject(wide).Position().X {
		t.Error("expected columns laid out left to right")
	}
}

func TestTreeDrivesList(t *testing.T) {
	test.NewTempApp(t)
	tree := NewTree()
	mem := query.NewMemory("id")
	mem.Set("albums", []models.Record{
		models.NewRecord("mem://1", map[string]any{"id": 1, "name": "Blue", "done": 30}),
		models.NewRecord("mem://2", map[string]any{"id": 2, "name": "Kid A", "done": 70}),
	})
	sched := loop.NewManual()

	l, err := objlist.New(objlist.Spec{
		Name:     "albums",
		Title:    "Albums",
		Identity: "id",
		Fields: []objlist.Field{
			{Name: "name", Title: "Name", Weight: 2},
			{Name: "done", Title: "Done", Display: objlist.DisplayProgress, Weight: 1},
		},
		Kinds: []string{"albums"},
	}, objlist.Deps{
		Tree:      tree,
		Backend:   mem,
		Store:     state.NewSession().Scope("albums"),
		Scheduler: sched,
		Parent:    tree.Root(),
	})
	if err != nil {
		t.Fatalf("failed to create list: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	sched.Flush()

	if got := len(tree.Children(l.Body())); got != 2 {
		t.Fatalf("expected 2 item rows, got %d", got)
	}

	mem.Set("albums", []models.Record{
		models.NewRecord("mem://2", map[string]any{"id": 2, "name": "Kid A", "done": 100}),
		models.NewRecord("mem://1", map[string]any{"id": 1, "name": "Blue", "done": 30}),
	})
	sched.Fire()

	rows := tree.Children(l.Body())
	if tree.Attr(rows[0], render.AttrIdentity) != "2" {
		t.Errorf("expected item 2 first after reorder")
	}
	if v := tree.node(l.Item("2").Node()).children[1].bar.Value; v != 100 {
		t.Errorf("expected progress 100, got %v", v)
	}

	test.Tap(tree.CanvasObject(rows[1]).(*hitBox))
	if l.Selected() != "1" {
		t.Errorf("expected click to select 1, got %q", l.Selected())
	}
	if !tree.HasClass(l.Item("1").Node(), constants.SelectedClass) {
		t.Error("expected selected class on item 1")
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := &Scheduler{do: func(fn func()) { fn() }}

	ran := make(chan string, 3)
	h := s.After(20*time.Millisecond, func() { ran <- "cancelled" })
	h.Cancel()
	s.After(time.Millisecond, func() { ran <- "timer" })
	s.Post(func() { ran <- "post" })

	if got := <-ran; got != "post" {
		t.Errorf("expected post first, got %s", got)
	}
	if got := <-ran; got != "timer" {
		t.Errorf("expected timer, got %s", got)
	}

	done := make(chan struct{})
	s.Go(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Go to run")
	}

	select {
	case got := <-ran:
		t.Errorf("expected cancelled timer not to run, got %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListThemeOverrides(t *testing.T) {
	th := newListTheme()
	def := theme.DefaultTheme()

	if got := th.Size(theme.SizeNamePadding); got != 3 {
		t.Errorf("expected padding 3, got %v", got)
	}
	if got, want := th.Size(theme.SizeNameText), def.Size(theme.SizeNameText); got != want {
		t.Errorf("expected default text size %v, got %v", want, got)
	}
	if th.Color(theme.ColorNameSelection, theme.VariantLight) == def.Color(theme.ColorNameSelection, theme.VariantLight) {
		t.Error("expected selection tint overridden")
	}
	if got, want := th.Color(theme.ColorNameForeground, theme.VariantDark), def.Color(theme.ColorNameForeground, theme.VariantDark); got != want {
		t.Errorf("expected default foreground %v, got %v", want, got)
	}
	if th.Icon(theme.IconNameInfo) == nil {
		t.Error("expected default icons")
	}
}
