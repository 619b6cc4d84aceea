package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/tui/model"
	"github.com/matheus3301/outpost/internal/tui/ui"
)

// NotificationList is the notification table, unread entries in bold.
type NotificationList struct {
	*tview.Table
	theme   *ui.Theme
	vm      *model.ViewModel
	filter  string
	visible []notify.Record
	now     func() time.Time
}

// NewNotificationList creates the table.
func NewNotificationList(theme *ui.Theme, vm *model.ViewModel) *NotificationList {
	return &NotificationList{Table: newTable(theme), theme: theme, vm: vm, now: time.Now}
}

// Name implements ui.Component.
func (nl *NotificationList) Name() string { return "Notifications" }

// SetFilter limits the rows to those whose actor or text contain filter.
func (nl *NotificationList) SetFilter(filter string) {
	nl.filter = filter
	nl.Refresh()
}

// Refresh implements ui.Component.
func (nl *NotificationList) Refresh() {
	snap := nl.vm.Notifications()
	selected := nl.Selected()

	nl.Clear()
	for col, h := range []string{" ", "FROM", "TYPE", "NOTIFICATION", "TIME"} {
		nl.SetCell(0, col, headerCell(nl.theme, h, col == 3))
	}

	nl.visible = nl.visible[:0]
	now := nl.now()
	for _, n := range snap.Notifications {
		actor := n.Actor.Username
		if actor == "" {
			actor = n.Actor.FullName
		}
		if nl.filter != "" && !containsFold(actor, nl.filter) && !containsFold(n.Content, nl.filter) {
			continue
		}
		nl.visible = append(nl.visible, n)
		row := len(nl.visible)

		mark, color, attr := " ", nl.theme.DimColor, tcell.AttrNone
		if !n.Read {
			mark, color, attr = "●", nl.theme.UnreadColor, tcell.AttrBold
		}
		cells := []string{mark, "@" + clean(actor), clean(n.Type), clean(n.Content), formatTime(n.CreatedAt, now)}
		for col, text := range cells {
			cell := tview.NewTableCell(text).SetTextColor(color).SetAttributes(attr)
			if col == 3 {
				cell.SetExpansion(1)
			}
			if col == 0 {
				cell.SetTextColor(nl.theme.OnlineColor)
			}
			nl.SetCell(row, col, cell)
		}
		if n.ID == selected {
			nl.Select(row, 0)
		}
	}

	title := fmt.Sprintf(" Notifications [%s](%d unread)[-] ", ui.ColorName(nl.theme.CounterColor), snap.Unread)
	if nl.filter != "" {
		title = fmt.Sprintf(" Notifications (%d/%d) /%s ", len(nl.visible), len(snap.Notifications), tview.Escape(nl.filter))
	}
	if snap.State != notify.Reconciled && snap.State != "" {
		title += fmt.Sprintf("[%s]%s[-] ", ui.ColorName(nl.theme.OfflineColor), snap.State)
	}
	nl.SetTitle(title)
}

// Selected returns the id of the highlighted notification.
func (nl *NotificationList) Selected() string {
	row, _ := nl.GetSelection()
	if row < 1 || row > len(nl.visible) {
		return ""
	}
	return nl.visible[row-1].ID
}

// SelectedURL returns the link of the highlighted notification.
func (nl *NotificationList) SelectedURL() string {
	row, _ := nl.GetSelection()
	if row < 1 || row > len(nl.visible) {
		return ""
	}
	return nl.visible[row-1].URL
}
