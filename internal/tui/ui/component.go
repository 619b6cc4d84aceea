package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
}

// Component is a page the app can push. Refresh redraws it from the view
// model and runs on the UI goroutine.
type Component interface {
	tview.Primitive
	Name() string
	Refresh()
}
