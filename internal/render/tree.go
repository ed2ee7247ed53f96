// Package render defines the render tree list instances draw into and ships
// an in-memory implementation with a terminal table renderer.
package render

// Kind selects what a node displays.
type Kind int

const (
	// KindBox groups child nodes.
	KindBox Kind = iota
	// KindText displays a line of text.
	KindText
	// KindProgress displays a percentage.
	KindProgress
	// KindIcon displays a clickable action icon.
	KindIcon
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindText:
		return "text"
	case KindProgress:
		return "progress"
	case KindIcon:
		return "icon"
	default:
		return "unknown"
	}
}

// Node is an opaque handle to a rendered node. Keys are unique per tree.
type Node interface {
	Key() string
}

// HandlerRef identifies a registered event handler.
type HandlerRef string

// Node roles, stored in the AttrRole attribute. Renderers use them to lay
// out the list.
const (
	RoleList    = "list"
	RoleTitle   = "title"
	RoleHeader  = "header"
	RoleBody    = "body"
	RoleItem    = "item"
	RoleCell    = "cell"
	RoleActions = "actions"
	RoleIcon    = "icon"
)

// Attribute keys.
const (
	AttrRole        = "role"
	AttrField       = "field"
	AttrWeight      = "weight"
	AttrAction      = "action"
	AttrIdentity    = "identity"
	AttrPlaceholder = "placeholder"
)

// ClassHidden hides a node without removing it.
const ClassHidden = "hidden"

// Events delivered to handlers registered with On.
const (
	EventClick       = "click"
	EventDoubleClick = "dblclick"
)

// Tree is the render surface consumed by list instances. All methods are
// called from the instance's scheduler thread.
type Tree interface {
	// Create makes a detached node.
	Create(kind Kind) Node
	// Destroy removes a node and its subtree from the tree and releases it.
	Destroy(n Node)
	// Append attaches child as the last child of parent.
	Append(parent, child Node)
	// Insert attaches child at index among parent's children.
	Insert(parent, child Node, index int)
	// Remove detaches n from its parent without destroying it.
	Remove(n Node)
	// Swap exchanges the positions of two nodes.
	Swap(a, b Node)

	SetContent(n Node, text string)
	SetPercent(n Node, percent float64)
	SetAttr(n Node, key, value string)
	SetStyle(n Node, style string)
	AddClass(n Node, class string)
	RemoveClass(n Node, class string)

	// On registers fn for event on n.
	On(n Node, event string, fn func()) HandlerRef
	// Draggable makes n a drag source carrying ref, shown as label.
	Draggable(n Node, ref, label string)
	// DropTarget makes n accept drops; fn receives the dragged ref.
	DropTarget(n Node, fn func(ref string))
}
