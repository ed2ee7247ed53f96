package render

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Mutation operation names counted by MemTree.
const (
	OpCreate      = "create"
	OpDestroy     = "destroy"
	OpAppend      = "append"
	OpInsert      = "insert"
	OpRemove      = "remove"
	OpSwap        = "swap"
	OpContent     = "content"
	OpPercent     = "percent"
	OpAttr        = "attr"
	OpStyle       = "style"
	OpAddClass    = "add_class"
	OpRemoveClass = "remove_class"
)

type memNode struct {
	key       string
	kind      Kind
	parent    *memNode
	children  []*memNode
	content   string
	percent   float64
	attrs     map[string]string
	style     string
	classes   map[string]bool
	handlers  map[string][]func()
	dragRef   string
	dragLabel string
	drop      func(ref string)
	destroyed bool
}

func (n *memNode) Key() string { return n.key }

// MemTree is an in-memory Tree. It counts every mutation so callers can
// assert how much work a change caused, and it can fire events and drops
// the way a user would.
// Thread-safe for concurrent access.
type MemTree struct {
	mu     sync.Mutex
	root   *memNode
	seq    int
	nodes  map[string]*memNode
	counts map[string]int
}

// NewMemTree creates a tree holding only a root box.
func NewMemTree() *MemTree {
	t := &MemTree{
		nodes:  make(map[string]*memNode),
		counts: make(map[string]int),
	}
	t.root = t.newNode(KindBox)
	return t
}

func (t *MemTree) newNode(kind Kind) *memNode {
	t.seq++
	n := &memNode{
		key:     "n" + strconv.Itoa(t.seq),
		kind:    kind,
		attrs:   make(map[string]string),
		classes: make(map[string]bool),
	}
	t.nodes[n.key] = n
	return n
}

func (t *MemTree) node(n Node) *memNode {
	if n == nil {
		return nil
	}
	mn, ok := t.nodes[n.Key()]
	if !ok || mn.destroyed {
		return nil
	}
	return mn
}

// Root returns the root box.
func (t *MemTree) Root() Node {
	return t.root
}

// Create makes a detached node.
func (t *MemTree) Create(kind Kind) Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[OpCreate]++
	return t.newNode(kind)
}

// Destroy detaches n and releases its subtree.
func (t *MemTree) Destroy(n Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil {
		return
	}
	t.counts[OpDestroy]++
	t.detach(mn)
	t.release(mn)
}

func (t *MemTree) release(n *memNode) {
	for _, c := range n.children {
		t.release(c)
	}
	n.destroyed = true
	n.children = nil
	n.handlers = nil
	n.drop = nil
	delete(t.nodes, n.key)
}

func (t *MemTree) detach(n *memNode) {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Append attaches child as the last child of parent.
func (t *MemTree) Append(parent, child Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, c := t.node(parent), t.node(child)
	if p == nil || c == nil {
		return
	}
	t.counts[OpAppend]++
	t.detach(c)
	c.parent = p
	p.children = append(p.children, c)
}

// Insert attaches child at index, clamped to the child count.
func (t *MemTree) Insert(parent, child Node, index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, c := t.node(parent), t.node(child)
	if p == nil || c == nil {
		return
	}
	t.counts[OpInsert]++
	t.detach(c)
	if index < 0 {
		index = 0
	}
	if index > len(p.children) {
		index = len(p.children)
	}
	p.children = append(p.children, nil)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = c
	c.parent = p
}

// Remove detaches n from its parent.
func (t *MemTree) Remove(n Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil || mn.parent == nil {
		return
	}
	t.counts[OpRemove]++
	t.detach(mn)
}

// Swap exchanges the positions of a and b, which may have different parents.
func (t *MemTree) Swap(a, b Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	na, nb := t.node(a), t.node(b)
	if na == nil || nb == nil || na == nb || na.parent == nil || nb.parent == nil {
		return
	}
	t.counts[OpSwap]++
	ia, ib := indexOf(na), indexOf(nb)
	pa, pb := na.parent, nb.parent
	pa.children[ia], pb.children[ib] = nb, na
	na.parent, nb.parent = pb, pa
}

func indexOf(n *memNode) int {
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

func (t *MemTree) SetContent(n Node, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		t.counts[OpContent]++
		mn.content = text
	}
}

func (t *MemTree) SetPercent(n Node, percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		t.counts[OpPercent]++
		mn.percent = percent
	}
}

func (t *MemTree) SetAttr(n Node, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		t.counts[OpAttr]++
		if value == "" {
			delete(mn.attrs, key)
		} else {
			mn.attrs[key] = value
		}
	}
}

func (t *MemTree) SetStyle(n Node, style string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		t.counts[OpStyle]++
		mn.style = style
	}
}

func (t *MemTree) AddClass(n Node, class string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		t.counts[OpAddClass]++
		mn.classes[class] = true
	}
}

func (t *MemTree) RemoveClass(n Node, class string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		t.counts[OpRemoveClass]++
		delete(mn.classes, class)
	}
}

// On registers fn for event on n.
func (t *MemTree) On(n Node, event string, fn func()) HandlerRef {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil {
		return ""
	}
	if mn.handlers == nil {
		mn.handlers = make(map[string][]func())
	}
	mn.handlers[event] = append(mn.handlers[event], fn)
	return HandlerRef(fmt.Sprintf("%s/%s/%d", mn.key, event, len(mn.handlers[event])))
}

// Draggable records the drag payload of n.
func (t *MemTree) Draggable(n Node, ref, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		mn.dragRef = ref
		mn.dragLabel = label
	}
}

// DropTarget registers fn as the drop handler of n.
func (t *MemTree) DropTarget(n Node, fn func(ref string)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		mn.drop = fn
	}
}

// Fire runs the handlers registered for event on n. It returns false when
// there are none.
func (t *MemTree) Fire(n Node, event string) bool {
	t.mu.Lock()
	var handlers []func()
	if mn := t.node(n); mn != nil {
		handlers = append(handlers, mn.handlers[event]...)
	}
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	return len(handlers) > 0
}

// Drop delivers ref to the drop handler of n.
func (t *MemTree) Drop(n Node, ref string) bool {
	t.mu.Lock()
	var fn func(string)
	if mn := t.node(n); mn != nil {
		fn = mn.drop
	}
	t.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(ref)
	return true
}

// DragData returns the drag payload of n.
func (t *MemTree) DragData(n Node) (ref, label string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil || mn.dragRef == "" {
		return "", "", false
	}
	return mn.dragRef, mn.dragLabel, true
}

// Children returns the children of n in order.
func (t *MemTree) Children(n Node) []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil {
		return nil
	}
	out := make([]Node, len(mn.children))
	for i, c := range mn.children {
		out[i] = c
	}
	return out
}

// Parent returns the parent of n, or nil when detached.
func (t *MemTree) Parent(n Node) Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil || mn.parent == nil {
		return nil
	}
	return mn.parent
}

// Kind returns the kind of n.
func (t *MemTree) Kind(n Node) Kind {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		return mn.kind
	}
	return KindBox
}

// Content returns the text of n.
func (t *MemTree) Content(n Node) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		return mn.content
	}
	return ""
}

// Percent returns the progress value of n.
func (t *MemTree) Percent(n Node) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		return mn.percent
	}
	return 0
}

// Attr returns the value of attribute key on n.
func (t *MemTree) Attr(n Node, key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		return mn.attrs[key]
	}
	return ""
}

// Style returns the style of n.
func (t *MemTree) Style(n Node) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		return mn.style
	}
	return ""
}

// HasClass reports whether n carries class.
func (t *MemTree) HasClass(n Node, class string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mn := t.node(n); mn != nil {
		return mn.classes[class]
	}
	return false
}

// Alive reports whether n exists and has not been destroyed.
func (t *MemTree) Alive(n Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.node(n) != nil
}

// Len returns the number of live nodes, root included.
func (t *MemTree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Find returns the first node in depth-first order below from whose
// attribute key equals value.
func (t *MemTree) Find(from Node, key, value string) Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.node(from)
	if start == nil {
		return nil
	}
	if found := find(start, key, value); found != nil {
		return found
	}
	return nil
}

func find(n *memNode, key, value string) *memNode {
	if n.attrs[key] == value {
		return n
	}
	for _, c := range n.children {
		if f := find(c, key, value); f != nil {
			return f
		}
	}
	return nil
}

// Mutations returns the total number of counted mutations.
func (t *MemTree) Mutations() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, c := range t.counts {
		total += c
	}
	return total
}

// Count returns the number of mutations of one operation.
func (t *MemTree) Count(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[op]
}

// ResetCounts zeroes the mutation counters.
func (t *MemTree) ResetCounts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[string]int)
}

// Dump writes an indented outline of the tree below n.
func (t *MemTree) Dump(w io.Writer, n Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	mn := t.node(n)
	if mn == nil {
		return nil
	}
	return dump(w, mn, 0)
}

func dump(w io.Writer, n *memNode, depth int) error {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.kind.String())
	if role := n.attrs[AttrRole]; role != "" {
		b.WriteString(" ")
		b.WriteString(role)
	}

	keys := make([]string, 0, len(n.attrs))
	for k := range n.attrs {
		if k != AttrRole {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, n.attrs[k])
	}

	classes := make([]string, 0, len(n.classes))
	for c := range n.classes {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	if len(classes) > 0 {
		fmt.Fprintf(&b, " .%s", strings.Join(classes, "."))
	}

	switch n.kind {
	case KindText:
		fmt.Fprintf(&b, " %q", n.content)
	case KindProgress:
		fmt.Fprintf(&b, " %.0f%%", n.percent)
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := dump(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
