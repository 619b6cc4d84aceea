package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func runeEvent(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Help: "Refresh", Handler: func() { got = append(got, "global") }})
	r.AddView("notifications", &Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Help: "Read", Handler: func() { got = append(got, "view") }})

	assert.True(t, r.HandleEvent("notifications", runeEvent('r')))
	assert.True(t, r.HandleEvent("outbox", runeEvent('r')))
	assert.False(t, r.HandleEvent("outbox", runeEvent('z')))
	assert.Equal(t, []string{"view", "global"}, got)
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	hit := false
	r.AddGlobal(&Action{Key: tcell.KeyCtrlR, Label: "Ctrl-R", Help: "Sync", Handler: func() { hit = true }})

	assert.False(t, r.HandleEvent("", runeEvent('R')))
	assert.True(t, r.HandleEvent("", tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl)))
	assert.True(t, hit)
}

func TestHintsOrderAndHidden(t *testing.T) {
	r := NewRegistry()
	noop := func() {}
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Help: "Quit", Handler: noop})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'j', Label: "j", Help: "Down", Hidden: true, Handler: noop})
	r.AddView("outbox", &Action{Key: tcell.KeyRune, Rune: 'x', Label: "x", Help: "Discard", Handler: noop})
	r.AddView("outbox", &Action{Key: tcell.KeyRune, Rune: 'y', Label: "y", Help: "Retry", Handler: noop})

	hints := r.Hints("outbox")
	var labels []string
	for _, h := range hints {
		labels = append(labels, h.Key)
	}
	assert.Equal(t, []string{"x", "y", "q"}, labels)
}
