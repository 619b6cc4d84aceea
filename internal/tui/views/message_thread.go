package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/tui/model"
	"github.com/matheus3301/outpost/internal/tui/ui"
)

// MessageThread shows a conversation's cached messages above a composer.
// Text left in the composer is handed to onDraft when it loses focus.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	vm       *model.ViewModel
	self     string
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
	onDraft  func(text string)
	now      func() time.Time
}

// NewMessageThread creates the thread view. Messages from self render as
// "You".
func NewMessageThread(theme *ui.Theme, vm *model.ViewModel) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, Esc to leave) ")
	composer.SetTitleColor(theme.TitleColor)

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		vm:       vm,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := composer.GetText()
			if text != "" && mt.onSend != nil {
				composer.SetText("")
				mt.onSend(text)
			}
		case tcell.KeyEscape:
			if mt.onDraft != nil {
				mt.onDraft(composer.GetText())
			}
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if conv := mt.vm.Active(); conv != "" {
		return conv
	}
	return "Thread"
}

// SetSelf sets the subject whose messages are shown as "You".
func (mt *MessageThread) SetSelf(subject string) {
	mt.self = subject
}

// SetOnSend sets the callback for Enter in the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnDraft sets the callback for Esc in the composer.
func (mt *MessageThread) SetOnDraft(fn func(text string)) {
	mt.onDraft = fn
}

// SetDraft preloads the composer.
func (mt *MessageThread) SetDraft(text string) {
	mt.composer.SetText(text)
}

// Refresh implements ui.Component.
func (mt *MessageThread) Refresh() {
	msgs, warning := mt.vm.Messages()
	mt.messages.Clear()

	title := fmt.Sprintf(" %s (%d) ", clean(mt.Name()), len(msgs))
	if warning != "" {
		title += fmt.Sprintf("[%s]%s[-] ", ui.ColorName(mt.theme.OfflineColor), clean(warning))
	}
	mt.messages.SetTitle(title)

	now := mt.now()
	dim := ui.ColorName(mt.theme.DimColor)
	// Newest first from the daemon; a thread reads oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		sender := m.SenderID
		if sender == "" {
			sender = "unknown"
		}
		if mt.self != "" && sender == mt.self {
			sender = "You"
		}
		_, _ = fmt.Fprintf(mt.messages, "[::b]%s[-:-:-] [%s]%s[-]\n%s\n\n",
			clean(sender), dim, formatMillis(m.Timestamp, now), clean(m.Content))
	}

	mt.messages.ScrollToEnd()
}

// Messages returns the message pane for focus handling.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input field for focus handling.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
