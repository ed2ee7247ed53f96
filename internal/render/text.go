package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/rescale/livelist/internal/constants"
)

const columnGap = "  "

// TerminalWidth returns the width of w when it is a terminal, or
// constants.DefaultTerminalWidth.
func TerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return constants.DefaultTerminalWidth
}

// TextRenderer draws a list subtree of a MemTree as a plain text table.
type TextRenderer struct {
	Width int
}

// NewTextRenderer creates a renderer sized for w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{Width: TerminalWidth(w)}
}

// Render writes the list rooted at list to w.
func (r *TextRenderer) Render(w io.Writer, t *MemTree, list Node) error {
	t.mu.Lock()
	root := t.node(list)
	var lines []string
	if root != nil {
		lines = r.lines(root)
	}
	t.mu.Unlock()

	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// String renders the list to a string.
func (r *TextRenderer) String(t *MemTree, list Node) string {
	var b strings.Builder
	_ = r.Render(&b, t, list)
	return b.String()
}

func (r *TextRenderer) lines(list *memNode) []string {
	reserve := actionWidth(list)
	var out []string
	for _, child := range list.children {
		switch child.attrs[AttrRole] {
		case RoleTitle:
			out = append(out, child.content, strings.Repeat("=", utf8.RuneCountInString(child.content)))
		case RoleHeader:
			out = append(out, "  "+r.row(child, reserve))
		case RoleBody:
			items := 0
			for _, item := range child.children {
				if item.attrs[AttrRole] != RoleItem {
					continue
				}
				items++
				prefix := "  "
				if item.classes[constants.SelectedClass] {
					prefix = "> "
				}
				out = append(out, prefix+r.row(item, reserve))
			}
			if items == 0 {
				if placeholder := child.attrs[AttrPlaceholder]; placeholder != "" {
					out = append(out, "  "+placeholder)
				}
			}
		}
	}
	return out
}

// actionWidth returns the widest action column of the list's items so
// that header and item cells line up.
func actionWidth(list *memNode) int {
	widest := 0
	for _, child := range list.children {
		if child.attrs[AttrRole] != RoleBody {
			continue
		}
		for _, item := range child.children {
			for _, c := range item.children {
				if c.attrs[AttrRole] != RoleActions {
					continue
				}
				if w := utf8.RuneCountInString(iconText(c)); w > widest {
					widest = w
				}
			}
		}
	}
	return widest
}

func (r *TextRenderer) row(n *memNode, reserve int) string {
	var cells []*memNode
	var actions string
	for _, c := range n.children {
		switch c.attrs[AttrRole] {
		case RoleCell:
			cells = append(cells, c)
		case RoleActions:
			actions = iconText(c)
		}
	}

	width := r.Width - 2
	if width <= 0 {
		width = constants.DefaultTerminalWidth
	}
	if reserve > 0 {
		width -= reserve + len(columnGap)
	}
	width -= len(columnGap) * (len(cells) - 1)

	widths := columnWidths(cells, width)
	parts := make([]string, 0, len(cells)+1)
	for i, c := range cells {
		parts = append(parts, fit(cellText(c), widths[i]))
	}
	if actions != "" {
		parts = append(parts, actions)
	}
	return strings.TrimRight(strings.Join(parts, columnGap), " ")
}

func columnWidths(cells []*memNode, total int) []int {
	weights := make([]float64, len(cells))
	sum := 0.0
	for i, c := range cells {
		weights[i] = 1
		if v, err := strconv.ParseFloat(c.attrs[AttrWeight], 64); err == nil && v > 0 {
			weights[i] = v
		}
		sum += weights[i]
	}

	widths := make([]int, len(cells))
	for i := range cells {
		w := int(math.Floor(float64(total) * weights[i] / sum))
		if w < 1 {
			w = 1
		}
		widths[i] = w
	}
	return widths
}

func cellText(c *memNode) string {
	if c.kind == KindProgress {
		return ProgressText(c.percent)
	}
	return c.content
}

func iconText(actions *memNode) string {
	var icons []string
	for _, icon := range actions.children {
		if icon.classes[ClassHidden] {
			continue
		}
		icons = append(icons, "["+icon.content+"]")
	}
	return strings.Join(icons, " ")
}

func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n <= width {
		return s + strings.Repeat(" ", width-n)
	}
	runes := []rune(s)
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

// ProgressText renders a percentage as an ASCII progress bar.
func ProgressText(percent float64) string {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(io.Discard),
		progressbar.OptionSetWidth(constants.ProgressCellWidth),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	_ = bar.Set(int(math.Round(percent)))

	s := strings.TrimSpace(strings.Trim(bar.String(), "\r"))
	if s == "" {
		return fmt.Sprintf("%3.0f%%", percent)
	}
	return s
}
