package views

import (
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/tui/ui"
)

func formatTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func formatMillis(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	return formatTime(time.UnixMilli(ms), now)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func headerCell(theme *ui.Theme, text string, expand bool) *tview.TableCell {
	cell := tview.NewTableCell(text).
		SetSelectable(false).
		SetTextColor(theme.TableHeaderFg).
		SetBackgroundColor(theme.TableHeaderBg).
		SetAttributes(tcell.AttrBold)
	if expand {
		cell.SetExpansion(1)
	}
	return cell
}

func newTable(theme *ui.Theme) *tview.Table {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)
	return table
}
