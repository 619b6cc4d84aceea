package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/api"
)

// SessionInfo shows daemon status in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates an empty panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &SessionInfo{TextView: tv, theme: theme}
}

// Update renders st. A nil status means the daemon did not answer.
func (si *SessionInfo) Update(session string, st *api.StatusResponse) {
	si.Clear()
	label := ColorName(si.theme.FgColor)
	value := ColorName(si.theme.CounterColor)
	row := func(k, v string) {
		_, _ = fmt.Fprintf(si, "[%s::b]%-8s[-:-:-] [%s]%s[-]\n", label, k+":", value, tview.Escape(v))
	}

	row("Session", session)
	if st == nil {
		row("Status", "daemon unreachable")
		return
	}
	user := "-"
	if st.Authenticated {
		user = st.Subject
		if user == "" {
			user = "logged in"
		}
	}
	row("Status", st.Status)
	row("User", user)
	net := fmt.Sprintf("[%s]offline[-]", ColorName(si.theme.OfflineColor))
	if st.Online {
		net = fmt.Sprintf("[%s]online[-]", ColorName(si.theme.OnlineColor))
	}
	if st.ForcedOffline {
		net += " (airplane)"
	}
	if st.RealtimeConnected {
		net += " live"
	}
	_, _ = fmt.Fprintf(si, "[%s::b]%-8s[-:-:-] %s\n", label, "Network:", net)
	row("Store", st.StoreMode)
	row("Uptime", formatDuration(time.Duration(st.UptimeMs)*time.Millisecond))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
