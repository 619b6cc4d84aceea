package keys

import (
	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/outpost/internal/tui/ui"
)

// Action is one keybinding.
type Action struct {
	Key   tcell.Key
	Rune  rune
	Label string // shown in the menu, e.g. "r"
	Help  string

	// Hidden actions work but are not listed in the menu.
	Hidden  bool
	Handler func()
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings per page plus global ones, in registration
// order.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// AddView registers a binding for one page. It shadows a global binding
// on the same key.
func (r *Registry) AddView(view string, a *Action) {
	r.views[view] = append(r.views[view], a)
}

// Hints lists the visible bindings of view, page bindings first.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range append(append([]*Action(nil), r.views[view]...), r.global...) {
		if !a.Hidden {
			hints = append(hints, ui.MenuHint{Key: a.Label, Description: a.Help})
		}
	}
	return hints
}

// HandleEvent runs the first binding of view, then of the global set, that
// matches ev. It reports whether one ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, set := range [][]*Action{r.views[view], r.global} {
		for _, a := range set {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
