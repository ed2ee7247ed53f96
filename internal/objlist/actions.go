package objlist

import (
	"github.com/rescale/livelist/internal/render"
)

// actionCell holds the action icons of one item and shows the ones the
// action filter allows. Icons are only toggled when their visibility
// changes.
type actionCell struct {
	tree      render.Tree
	node      render.Node
	actions   []Action
	filter    ActionFilter
	icons     map[string]render.Node
	displayed map[string]bool
	rendered  bool
	onToggle  func(action string, visible bool)
}

// newActionCell builds the icon nodes under a new actions box. Icons start
// visible; the first update hides the ones filtered out.
func newActionCell(tree render.Tree, actions []Action, filter ActionFilter, ref func() string) *actionCell {
	ac := &actionCell{
		tree:      tree,
		node:      tree.Create(render.KindBox),
		actions:   actions,
		filter:    filter,
		icons:     make(map[string]render.Node, len(actions)),
		displayed: make(map[string]bool, len(actions)),
	}
	tree.SetAttr(ac.node, render.AttrRole, render.RoleActions)

	for _, a := range actions {
		a := a
		icon := tree.Create(render.KindIcon)
		tree.SetAttr(icon, render.AttrRole, render.RoleIcon)
		tree.SetAttr(icon, render.AttrAction, a.Name)
		tree.SetAttr(icon, "title", a.Title)
		label := a.Icon
		if label == "" {
			label = a.Name
		}
		tree.SetContent(icon, label)
		if a.Handler != nil {
			tree.On(icon, render.EventClick, func() { a.Handler(a.Name, ref()) })
		}
		tree.Append(ac.node, icon)
		ac.icons[a.Name] = icon
	}
	return ac
}

// update recomputes visibility for a record and returns the number of
// icons toggled. The first update hides filtered actions without counting
// them as toggles.
func (ac *actionCell) update(ref string, fields map[string]any) int {
	first := !ac.rendered
	ac.rendered = true

	toggled := 0
	for _, a := range ac.actions {
		visible := true
		if ac.filter != nil {
			visible = ac.filter(a.Name, ref, fields)
		}
		icon := ac.icons[a.Name]

		switch {
		case first:
			if !visible {
				ac.tree.AddClass(icon, render.ClassHidden)
			}
		case visible && !ac.displayed[a.Name]:
			ac.tree.RemoveClass(icon, render.ClassHidden)
			toggled++
			ac.toggle(a.Name, true)
		case !visible && ac.displayed[a.Name]:
			ac.tree.AddClass(icon, render.ClassHidden)
			toggled++
			ac.toggle(a.Name, false)
		}
		ac.displayed[a.Name] = visible
	}
	return toggled
}

func (ac *actionCell) toggle(action string, visible bool) {
	if ac.onToggle != nil {
		ac.onToggle(action, visible)
	}
}

// visible returns the names of displayed actions in declaration order.
func (ac *actionCell) visible() []string {
	var out []string
	for _, a := range ac.actions {
		if ac.displayed[a.Name] {
			out = append(out, a.Name)
		}
	}
	return out
}
