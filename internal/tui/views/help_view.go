package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/tui/ui"
)

// HelpView lists keys and commands.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	kc := ui.ColorName(theme.MenuKeyColor)
	var b strings.Builder
	section := func(title string, rows [][2]string) {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", title)
		for _, r := range rows {
			fmt.Fprintf(&b, "  [%s]%-22s[-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	section("Global", [][2]string{
		{":", "Command mode"},
		{"/", "Filter notifications"},
		{"n / o", "Notifications / outbox"},
		{"Ctrl-S", "Sync the outbox now"},
		{"Esc", "Back"},
		{"?", "This help"},
		{"q", "Quit"},
	})
	section("Notifications", [][2]string{
		{"Enter / r", "Mark read"},
		{"R", "Mark all read"},
		{"u", "Refresh from server"},
	})
	section("Outbox", [][2]string{
		{"Enter", "Open the conversation"},
		{"y", "Retry failed entries"},
		{"x", "Discard entry"},
	})
	section("Thread", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send (queued while offline)"},
		{"Esc", "Leave composer, keep draft"},
		{"u", "Pull newer messages"},
	})
	section("Commands", [][2]string{
		{":open <conversation>", "Open a conversation thread"},
		{":login <token>", "Store the session cookie"},
		{":logout", "Forget the session cookie"},
		{":offline on|off", "Airplane mode"},
		{":sync", "Drain the outbox"},
		{":retry [conversation]", "Retry failed sends"},
		{":clear <conv>|all", "Clear cached data"},
		{":quit", "Quit"},
	})
	_, _ = fmt.Fprint(tv, b.String())

	return &HelpView{TextView: tv}
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// Refresh implements ui.Component.
func (hv *HelpView) Refresh() {}
