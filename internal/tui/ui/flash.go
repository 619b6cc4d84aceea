package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a transient notice.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the current flash message.
type FlashModel struct {
	mu      sync.RWMutex
	now     func() time.Time
	current FlashMessage
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

// Info shows msg for five seconds.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo, 5*time.Second)
}

// Warn shows msg for eight seconds.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn, 8*time.Second)
}

// Err shows a daemon error. Unavailable means the action was deferred or
// the server is unreachable, so it is a warning rather than an error.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		f.set(err.Error(), FlashErr, 10*time.Second)
		return
	}
	switch st.Code() {
	case codes.Unavailable:
		f.Warn(st.Message())
	case codes.Unauthenticated:
		f.set("session expired, :login <token>", FlashErr, 10*time.Second)
	default:
		f.set(st.Message(), FlashErr, 10*time.Second)
	}
}

func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.now().Add(d)}
	f.mu.Unlock()
}

// Current returns the live message, or nil once it has expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// FlashBar displays the flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates an empty flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", ColorName(color), tview.Escape(msg.Text))
}
