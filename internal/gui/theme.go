package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// listTheme packs list rows tighter and tints the selected row.
type listTheme struct {
	fyne.Theme
}

func newListTheme() *listTheme {
	return &listTheme{Theme: theme.DefaultTheme()}
}

func (t *listTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	if name == theme.ColorNameSelection {
		return color.NRGBA{R: 0x00, G: 0x7A, B: 0xCC, A: 0x40}
	}
	return t.Theme.Color(name, variant)
}

// Size shrinks padding; row cells lay out by theme.Padding.
func (t *listTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNamePadding {
		return 3
	}
	return t.Theme.Size(name)
}
