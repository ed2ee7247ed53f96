package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rescale/livelist/internal/render"
)

// hitBox wraps a box container so that it receives taps and drags.
type hitBox struct {
	widget.BaseWidget

	n       *node
	content fyne.CanvasObject
	dragPos fyne.Position
	drag    bool
}

func newHitBox(n *node, content fyne.CanvasObject) *hitBox {
	h := &hitBox{n: n, content: content}
	h.ExtendBaseWidget(h)
	return h
}

// CreateRenderer implements fyne.Widget
func (h *hitBox) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(h.content)
}

// Tapped implements fyne.Tappable
func (h *hitBox) Tapped(*fyne.PointEvent) {
	h.n.tree.fire(h.n, render.EventClick)
}

// DoubleTapped implements fyne.DoubleTappable
func (h *hitBox) DoubleTapped(*fyne.PointEvent) {
	h.n.tree.fire(h.n, render.EventDoubleClick)
}

// Dragged implements fyne.Draggable. Only nodes with a drag payload move.
func (h *hitBox) Dragged(e *fyne.DragEvent) {
	if h.n.dragRef == "" {
		return
	}
	h.drag = true
	h.dragPos = e.AbsolutePosition
}

// DragEnd implements fyne.Draggable
func (h *hitBox) DragEnd() {
	if !h.drag {
		return
	}
	h.drag = false
	h.n.tree.dropAt(h.n, h.dragPos)
}

// weightLayout lays out a row: children with a weight share the width
// left after unweighted children take their minimum size.
type weightLayout struct {
	row *node
}

func (l *weightLayout) weights(objects []fyne.CanvasObject) []float64 {
	out := make([]float64, len(objects))
	for i := range objects {
		if i < len(l.row.children) {
			out[i] = l.row.children[i].weight()
		}
	}
	return out
}

// MinSize implements fyne.Layout
func (l *weightLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	pad := theme.Padding()
	var w, h float32
	visible := 0
	for _, o := range objects {
		if !o.Visible() {
			continue
		}
		min := o.MinSize()
		w += min.Width
		if min.Height > h {
			h = min.Height
		}
		visible++
	}
	if visible > 1 {
		w += pad * float32(visible-1)
	}
	return fyne.NewSize(w, h)
}

// Layout implements fyne.Layout
func (l *weightLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	pad := theme.Padding()
	weights := l.weights(objects)

	var total float64
	fixed := float32(0)
	visible := 0
	for i, o := range objects {
		if !o.Visible() {
			continue
		}
		visible++
		if weights[i] > 0 {
			total += weights[i]
		} else {
			fixed += o.MinSize().Width
		}
	}
	if visible > 1 {
		fixed += pad * float32(visible-1)
	}
	free := size.Width - fixed
	if free < 0 {
		free = 0
	}

	x := float32(0)
	for i, o := range objects {
		if !o.Visible() {
			continue
		}
		w := o.MinSize().Width
		if weights[i] > 0 {
			w = free * float32(weights[i]/total)
		}
		o.Move(fyne.NewPos(x, 0))
		o.Resize(fyne.NewSize(w, size.Height))
		x += w + pad
	}
}
