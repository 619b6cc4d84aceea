package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/store"
	"github.com/matheus3301/outpost/internal/tui/model"
	"github.com/matheus3301/outpost/internal/tui/ui"
)

// OutboxList shows queued and failed sends.
type OutboxList struct {
	*tview.Table
	theme   *ui.Theme
	vm      *model.ViewModel
	entries []store.PendingEntry
	now     func() time.Time
}

// NewOutboxList creates the table.
func NewOutboxList(theme *ui.Theme, vm *model.ViewModel) *OutboxList {
	return &OutboxList{Table: newTable(theme), theme: theme, vm: vm, now: time.Now}
}

// Name implements ui.Component.
func (ol *OutboxList) Name() string { return "Outbox" }

// Refresh implements ui.Component.
func (ol *OutboxList) Refresh() {
	ol.entries = ol.vm.Pending()
	ol.Clear()
	for col, h := range []string{"ID", "CONVERSATION", "STATUS", "MESSAGE", "TRIES", "QUEUED"} {
		ol.SetCell(0, col, headerCell(ol.theme, h, col == 3))
	}

	now := ol.now()
	failed := 0
	for i, e := range ol.entries {
		color := ol.theme.FgColor
		status := string(e.Status)
		if e.Status == store.StatusFailed {
			failed++
			color = ol.theme.FailedColor
			if e.LastError != "" {
				status += ": " + e.LastError
			}
		}
		cells := []string{
			strconv.FormatInt(e.ID, 10),
			clean(e.ConversationID),
			clean(status),
			clean(e.Content),
			strconv.Itoa(e.Attempts),
			formatMillis(e.CreatedAt, now),
		}
		for col, text := range cells {
			cell := tview.NewTableCell(text).SetTextColor(color)
			switch col {
			case 2:
				cell.SetMaxWidth(32)
			case 3:
				cell.SetExpansion(1)
			}
			ol.SetCell(i+1, col, cell)
		}
	}

	ol.SetTitle(fmt.Sprintf(" Outbox (%d pending, %d failed) ", len(ol.entries)-failed, failed))
}

// Selected returns the highlighted entry.
func (ol *OutboxList) Selected() (store.PendingEntry, bool) {
	row, _ := ol.GetSelection()
	if row < 1 || row > len(ol.entries) {
		return store.PendingEntry{}, false
	}
	return ol.entries[row-1], true
}
