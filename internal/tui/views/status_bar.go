package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/tui/ui"
)

// StatusBar is the bottom line: connectivity, queue depth and unread count.
type StatusBar struct {
	*tview.TextView
	theme *ui.Theme
	now   func() time.Time
}

// NewStatusBar creates the bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// Update renders st. A nil status means the daemon is unreachable.
func (sb *StatusBar) Update(st *api.StatusResponse) {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.render(st))
}

func (sb *StatusBar) render(st *api.StatusResponse) string {
	clock := sb.now().Format("15:04")
	if st == nil {
		return fmt.Sprintf(" [%s]daemon unreachable[-] | %s", ui.ColorName(sb.theme.FailedColor), clock)
	}

	parts := []string{" [::b]" + tview.Escape(st.Status) + "[-:-:-]"}
	switch {
	case st.ForcedOffline:
		parts = append(parts, fmt.Sprintf("[%s]airplane[-]", ui.ColorName(sb.theme.OfflineColor)))
	case st.Online:
		parts = append(parts, fmt.Sprintf("[%s]online[-]", ui.ColorName(sb.theme.OnlineColor)))
	default:
		parts = append(parts, fmt.Sprintf("[%s]offline[-]", ui.ColorName(sb.theme.OfflineColor)))
	}
	outbox := fmt.Sprintf("outbox %d", st.Pending)
	if st.Syncing {
		outbox += " [green]~[-]"
	}
	parts = append(parts, outbox, fmt.Sprintf("unread %d", st.Unread))
	if n := len(st.Errors); n > 0 {
		parts = append(parts, fmt.Sprintf("[%s]%s[-]", ui.ColorName(sb.theme.FailedColor), tview.Escape(st.Errors[n-1])))
	}
	parts = append(parts, clock)
	return strings.Join(parts, " | ")
}
