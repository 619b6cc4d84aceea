package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu lists key hints in columns of rows entries each.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a menu with the given column height.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	if rows < 1 {
		rows = 1
	}
	return &Menu{TextView: tv, theme: theme, rows: rows}
}

// Update renders hints column by column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.render(hints))
}

func (m *Menu) render(hints []MenuHint) string {
	keyColor := ColorName(m.theme.MenuKeyColor)
	lines := make([]string, m.rows)
	for i, h := range hints {
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %-12s", keyColor, tview.Escape(h.Key), tview.Escape(h.Description))
		lines[i%m.rows] += cell
	}
	return strings.Join(lines, "\n")
}
