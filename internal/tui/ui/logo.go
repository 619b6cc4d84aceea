package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header banner.
type Logo struct {
	*tview.TextView
}

// NewLogo creates the banner.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 0, 1)

	title, fg := ColorName(theme.TitleColor), ColorName(theme.FgColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]┌─┐┬ ┬┌┬┐┌─┐┌─┐┌─┐┌┬┐[-:-:-]\n"+
			"[%s::b]│ ││ │ │ ├─┘│ │└─┐ │ [-:-:-]\n"+
			"[%s::b]└─┘└─┘ ┴ ┴  └─┘└─┘ ┴ [-:-:-]\n"+
			"[%s]works offline[-:-:-]",
		title, title, title, fg,
	)
	return &Logo{TextView: tv}
}
