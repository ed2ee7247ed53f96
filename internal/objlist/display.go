package objlist

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/render"
)

// cell is one rendered field of an item. It remembers the last applied
// rendition so that reapplying a value costs no tree mutation.
type cell struct {
	node     render.Node
	field    Field
	rendered string
	applied  bool
}

// patchFunc applies raw to c and reports whether the tree was mutated.
type patchFunc func(t render.Tree, c *cell, raw any) (bool, error)

// patchers dispatches on the closed set of display kinds.
var patchers = map[Display]patchFunc{
	DisplayText:     patchText,
	DisplayProgress: patchProgress,
}

// nodeKinds maps display kinds to the node kind their cells use.
var nodeKinds = map[Display]render.Kind{
	DisplayText:     render.KindText,
	DisplayProgress: render.KindProgress,
}

// patch applies a raw field value to a cell.
func patch(t render.Tree, c *cell, raw any) (bool, error) {
	p, ok := patchers[c.field.Display]
	if !ok {
		return false, fmt.Errorf("%w: unknown display %s", ErrInvalidSpec, c.field.Display)
	}
	return p(t, c, raw)
}

// patchChecked is patch for a record that passed Spec.checkRecord: text
// cells take their transformed text from texts instead of running the
// transform again.
func patchChecked(t render.Tree, c *cell, raw any, texts map[string]string) (bool, error) {
	if text, ok := texts[c.field.Name]; ok && c.field.Display == DisplayText {
		return setText(t, c, text), nil
	}
	return patch(t, c, raw)
}

func patchText(t render.Tree, c *cell, raw any) (bool, error) {
	text, err := displayText(c.field, raw)
	if err != nil {
		return false, err
	}
	return setText(t, c, text), nil
}

func setText(t render.Tree, c *cell, text string) bool {
	if c.applied && text == c.rendered {
		return false
	}
	t.SetContent(c.node, text)
	c.rendered = text
	c.applied = true
	return true
}

func patchProgress(t render.Tree, c *cell, raw any) (bool, error) {
	pct := Percent(raw)
	key := strconv.FormatFloat(pct, 'f', -1, 64)
	if c.applied && key == c.rendered {
		return false, nil
	}
	t.SetPercent(c.node, pct)
	c.rendered = key
	c.applied = true
	return true, nil
}

// displayText renders a value through the field transform, if any.
func displayText(f Field, raw any) (string, error) {
	if f.Transform == nil {
		return models.ValueString(raw), nil
	}
	text, err := f.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("%w: field %q: %v", models.ErrMalformedRecord, f.Name, err)
	}
	return text, nil
}

// Percent coerces a raw value to a percentage clamped to 0-100.
// Non-numeric input reads as 0.
func Percent(raw any) float64 {
	v, ok := models.Number(raw)
	if !ok || math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
