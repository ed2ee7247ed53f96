// Package gui renders live lists as fyne widgets.
package gui

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/render"
)

// node is one render node and the fyne objects that show it.
type node struct {
	tree     *Tree
	key      string
	kind     render.Kind
	attrs    map[string]string
	classes  map[string]bool
	parent   *node
	children []*node

	// box kinds
	hit   *hitBox
	box   *fyne.Container
	stack *fyne.Container
	back  *canvas.Rectangle
	hint  *widget.Label

	label *widget.Label
	bar   *widget.ProgressBar
	icon  *widget.Button

	handlers  map[string][]func()
	dragRef   string
	dragLabel string
	drop      func(ref string)
	destroyed bool
}

func (n *node) Key() string { return n.key }

// object returns the canvas object placed in the parent container.
func (n *node) object() fyne.CanvasObject {
	switch n.kind {
	case render.KindText:
		return n.label
	case render.KindProgress:
		return n.bar
	case render.KindIcon:
		return n.icon
	default:
		return n.hit
	}
}

// refreshHint shows the placeholder text of an empty box.
func (n *node) refreshHint() {
	if n.hint == nil {
		return
	}
	if n.attrs[render.AttrPlaceholder] != "" && len(n.children) == 0 {
		n.hint.Show()
	} else {
		n.hint.Hide()
	}
}

func (n *node) weight() float64 {
	w, err := strconv.ParseFloat(n.attrs[render.AttrWeight], 64)
	if err != nil || w <= 0 {
		return 0
	}
	return w
}

// Tree implements render.Tree over fyne widgets. Box nodes become
// containers laid out by role: lists and bodies stack vertically, items
// and headers are weighted rows. Like every fyne widget it must only be
// used from the fyne main goroutine.
type Tree struct {
	seq     int
	nodes   map[string]*node
	root    *node
	targets []*node
}

// NewTree creates a tree holding an empty root box.
func NewTree() *Tree {
	t := &Tree{nodes: make(map[string]*node)}
	t.root = t.newNode(render.KindBox)
	return t
}

// Root returns the root node.
func (t *Tree) Root() render.Node { return t.root }

// Object returns the canvas object of the root node, for placing the tree
// in a window.
func (t *Tree) Object() fyne.CanvasObject { return t.root.object() }

// CanvasObject returns the fyne object showing n, or nil.
func (t *Tree) CanvasObject(n render.Node) fyne.CanvasObject {
	if mn := t.node(n); mn != nil {
		return mn.object()
	}
	return nil
}

func (t *Tree) newNode(kind render.Kind) *node {
	t.seq++
	n := &node{
		tree:     t,
		key:      fmt.Sprintf("n%d", t.seq),
		kind:     kind,
		attrs:    make(map[string]string),
		classes:  make(map[string]bool),
		handlers: make(map[string][]func()),
	}
	switch kind {
	case render.KindText:
		n.label = widget.NewLabel("")
		n.label.Truncation = fyne.TextTruncateEllipsis
	case render.KindProgress:
		n.bar = widget.NewProgressBar()
		n.bar.Max = 100
	case render.KindIcon:
		n.icon = widget.NewButton("", func() { t.fire(n, render.EventClick) })
		n.icon.Importance = widget.LowImportance
	default:
		n.box = container.New(layout.NewVBoxLayout())
		n.back = canvas.NewRectangle(theme.Color(theme.ColorNameBackground))
		n.back.Hide()
		n.stack = container.NewStack(n.back, n.box)
		n.hit = newHitBox(n, n.stack)
	}
	t.nodes[n.key] = n
	return n
}

func (t *Tree) node(n render.Node) *node {
	mn, ok := n.(*node)
	if !ok || mn == nil || mn.tree != t || mn.destroyed {
		return nil
	}
	return mn
}

// Create makes a detached node.
func (t *Tree) Create(kind render.Kind) render.Node {
	return t.newNode(kind)
}

// Destroy detaches n and releases its subtree.
func (t *Tree) Destroy(n render.Node) {
	mn := t.node(n)
	if mn == nil {
		return
	}
	t.detach(mn)
	t.release(mn)
}

func (t *Tree) release(n *node) {
	for _, c := range n.children {
		t.release(c)
	}
	n.destroyed = true
	n.children = nil
	n.handlers = nil
	if n.drop != nil {
		n.drop = nil
		t.removeTarget(n)
	}
	delete(t.nodes, n.key)
}

func (t *Tree) detach(n *node) {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			p.box.Objects = append(p.box.Objects[:i], p.box.Objects[i+1:]...)
			break
		}
	}
	n.parent = nil
	p.box.Refresh()
	p.refreshHint()
}

// Append attaches child as the last child of parent.
func (t *Tree) Append(parent, child render.Node) {
	p, c := t.node(parent), t.node(child)
	if p == nil || c == nil || p.box == nil {
		return
	}
	t.detach(c)
	c.parent = p
	p.children = append(p.children, c)
	p.box.Objects = append(p.box.Objects, c.object())
	if p.attrs[render.AttrRole] == render.RoleHeader && c.label != nil {
		c.label.TextStyle = fyne.TextStyle{Bold: true}
		c.label.Refresh()
	}
	p.box.Refresh()
	p.refreshHint()
}

// Insert attaches child at index, clamped to the child count.
func (t *Tree) Insert(parent, child render.Node, index int) {
	p, c := t.node(parent), t.node(child)
	if p == nil || c == nil || p.box == nil {
		return
	}
	t.detach(c)
	if index < 0 {
		index = 0
	}
	if index > len(p.children) {
		index = len(p.children)
	}
	c.parent = p
	p.children = append(p.children, nil)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = c

	p.box.Objects = append(p.box.Objects, nil)
	copy(p.box.Objects[index+1:], p.box.Objects[index:])
	p.box.Objects[index] = c.object()
	p.box.Refresh()
	p.refreshHint()
}

// Remove detaches n without destroying it.
func (t *Tree) Remove(n render.Node) {
	if mn := t.node(n); mn != nil {
		t.detach(mn)
	}
}

// Swap exchanges the positions of two children of the same parent.
func (t *Tree) Swap(a, b render.Node) {
	na, nb := t.node(a), t.node(b)
	if na == nil || nb == nil || na == nb || na.parent == nil || na.parent != nb.parent {
		return
	}
	p := na.parent
	i, j := indexOf(p, na), indexOf(p, nb)
	p.children[i], p.children[j] = p.children[j], p.children[i]
	p.box.Objects[i], p.box.Objects[j] = p.box.Objects[j], p.box.Objects[i]
	p.box.Refresh()
}

func indexOf(p, n *node) int {
	for i, c := range p.children {
		if c == n {
			return i
		}
	}
	return -1
}

// SetContent sets the text of text and icon nodes.
func (t *Tree) SetContent(n render.Node, text string) {
	mn := t.node(n)
	if mn == nil {
		return
	}
	switch {
	case mn.label != nil:
		mn.label.SetText(text)
	case mn.icon != nil:
		mn.icon.SetText(text)
	}
}

// SetPercent sets the value of a progress node.
func (t *Tree) SetPercent(n render.Node, percent float64) {
	if mn := t.node(n); mn != nil && mn.bar != nil {
		mn.bar.SetValue(percent)
	}
}

// SetAttr sets an attribute. The role attribute picks the box layout and
// the label style of titles and headers.
func (t *Tree) SetAttr(n render.Node, key, value string) {
	mn := t.node(n)
	if mn == nil {
		return
	}
	if value == "" {
		delete(mn.attrs, key)
	} else {
		mn.attrs[key] = value
	}
	if key == render.AttrPlaceholder && mn.box != nil {
		if mn.hint == nil {
			mn.hint = widget.NewLabel("")
			mn.hint.TextStyle = fyne.TextStyle{Italic: true}
			mn.stack.Add(mn.hint)
		}
		mn.hint.SetText(value)
		mn.refreshHint()
		return
	}
	if key != render.AttrRole {
		return
	}

	switch value {
	case render.RoleItem, render.RoleHeader:
		if mn.box != nil {
			mn.box.Layout = &weightLayout{row: mn}
			mn.box.Refresh()
		}
	case render.RoleActions:
		if mn.box != nil {
			mn.box.Layout = layout.NewHBoxLayout()
			mn.box.Refresh()
		}
	case render.RoleTitle:
		if mn.label != nil {
			mn.label.TextStyle = fyne.TextStyle{Bold: true}
			mn.label.Refresh()
		}
	}
}

// SetStyle applies a space separated list of text styles: bold, italic,
// monospace. Unknown words are ignored.
func (t *Tree) SetStyle(n render.Node, style string) {
	mn := t.node(n)
	if mn == nil || mn.label == nil {
		return
	}
	var ts fyne.TextStyle
	for _, word := range strings.Fields(style) {
		switch strings.ToLower(word) {
		case "bold":
			ts.Bold = true
		case "italic":
			ts.Italic = true
		case "monospace", "mono":
			ts.Monospace = true
		}
	}
	mn.label.TextStyle = ts
	mn.label.Refresh()
}

// AddClass adds a class. The hidden class hides the node and the
// selected class highlights a box.
func (t *Tree) AddClass(n render.Node, class string) {
	mn := t.node(n)
	if mn == nil || mn.classes[class] {
		return
	}
	mn.classes[class] = true
	t.applyClass(mn, class, true)
}

// RemoveClass removes a class.
func (t *Tree) RemoveClass(n render.Node, class string) {
	mn := t.node(n)
	if mn == nil || !mn.classes[class] {
		return
	}
	delete(mn.classes, class)
	t.applyClass(mn, class, false)
}

func (t *Tree) applyClass(n *node, class string, on bool) {
	switch class {
	case render.ClassHidden:
		if on {
			n.object().Hide()
		} else {
			n.object().Show()
		}
	case constants.SelectedClass:
		if n.back == nil {
			return
		}
		if on {
			n.back.FillColor = theme.Color(theme.ColorNameSelection)
			n.back.Show()
		} else {
			n.back.Hide()
		}
		n.back.Refresh()
	}
}

// On registers fn for event. Boxes receive click and dblclick taps,
// icons receive clicks.
func (t *Tree) On(n render.Node, event string, fn func()) render.HandlerRef {
	mn := t.node(n)
	if mn == nil {
		return ""
	}
	mn.handlers[event] = append(mn.handlers[event], fn)
	return render.HandlerRef(fmt.Sprintf("%s/%s/%d", mn.key, event, len(mn.handlers[event])))
}

// Draggable sets the payload delivered to a drop target when n is dragged
// onto it.
func (t *Tree) Draggable(n render.Node, ref, label string) {
	if mn := t.node(n); mn != nil {
		mn.dragRef, mn.dragLabel = ref, label
	}
}

// DropTarget registers fn to receive references dropped on n.
func (t *Tree) DropTarget(n render.Node, fn func(ref string)) {
	mn := t.node(n)
	if mn == nil {
		return
	}
	if mn.drop == nil {
		t.targets = append(t.targets, mn)
	}
	mn.drop = fn
}

func (t *Tree) removeTarget(n *node) {
	for i, c := range t.targets {
		if c == n {
			t.targets = append(t.targets[:i], t.targets[i+1:]...)
			return
		}
	}
}

// fire runs the handlers of event on n.
func (t *Tree) fire(n *node, event string) bool {
	if n.destroyed {
		return false
	}
	handlers := append([]func(){}, n.handlers[event]...)
	for _, fn := range handlers {
		fn()
	}
	return len(handlers) > 0
}

// Fire runs the handlers registered for event on n.
func (t *Tree) Fire(n render.Node, event string) bool {
	mn := t.node(n)
	if mn == nil {
		return false
	}
	return t.fire(mn, event)
}

// Drop delivers ref to the drop handler of n.
func (t *Tree) Drop(n render.Node, ref string) bool {
	mn := t.node(n)
	if mn == nil || mn.drop == nil {
		return false
	}
	mn.drop(ref)
	return true
}

// dropAt delivers the drag payload of src to the innermost visible drop
// target under pos, other than src itself.
func (t *Tree) dropAt(src *node, pos fyne.Position) bool {
	if src.dragRef == "" {
		return false
	}
	var best *node
	bestDepth := -1
	for _, target := range t.targets {
		if target == src || !target.object().Visible() {
			continue
		}
		if !contains(target.object(), pos) {
			continue
		}
		if d := depth(target); d > bestDepth {
			best, bestDepth = target, d
		}
	}
	if best == nil {
		return false
	}
	best.drop(src.dragRef)
	return true
}

func contains(obj fyne.CanvasObject, pos fyne.Position) bool {
	app := fyne.CurrentApp()
	if app == nil {
		return false
	}
	origin := app.Driver().AbsolutePositionForObject(obj)
	size := obj.Size()
	return pos.X >= origin.X && pos.Y >= origin.Y &&
		pos.X < origin.X+size.Width && pos.Y < origin.Y+size.Height
}

func depth(n *node) int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Children returns the children of n in order.
func (t *Tree) Children(n render.Node) []render.Node {
	mn := t.node(n)
	if mn == nil {
		return nil
	}
	out := make([]render.Node, len(mn.children))
	for i, c := range mn.children {
		out[i] = c
	}
	return out
}

// Attr returns the value of attribute key on n.
func (t *Tree) Attr(n render.Node, key string) string {
	if mn := t.node(n); mn != nil {
		return mn.attrs[key]
	}
	return ""
}

// HasClass reports whether n carries class.
func (t *Tree) HasClass(n render.Node, class string) bool {
	if mn := t.node(n); mn != nil {
		return mn.classes[class]
	}
	return false
}

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int { return len(t.nodes) }
