package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jpillora/backoff"
	"github.com/rivo/tview"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/tui/keys"
	"github.com/matheus3301/outpost/internal/tui/model"
	"github.com/matheus3301/outpost/internal/tui/ui"
	"github.com/matheus3301/outpost/internal/tui/views"
)

const (
	pageNotifications = "notifications"
	pageOutbox        = "outbox"
	pageThread        = "thread"
	pageHelp          = "help"

	callTimeout  = 10 * time.Second
	pollInterval = 2 * time.Second
)

// App is the TUI shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	client   *api.Client
	vm       *model.ViewModel
	session  string
	registry *keys.Registry
	flash    *ui.FlashModel

	root      *tview.Flex
	pages     *ui.Pages
	info      *ui.SessionInfo
	menu      *ui.Menu
	crumbs    *ui.Crumbs
	prompt    *ui.Prompt
	flashBar  *ui.FlashBar
	statusBar *views.StatusBar

	components    map[string]ui.Component
	notifications *views.NotificationList
	outbox        *views.OutboxList
	thread        *views.MessageThread

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp builds the TUI for a connected daemon.
func NewApp(c *api.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	vm := model.NewViewModel(c)

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		client:    c,
		vm:        vm,
		session:   sessionName,
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		pages:     ui.NewPages(),
		info:      ui.NewSessionInfo(theme),
		menu:      ui.NewMenu(theme, 5),
		crumbs:    ui.NewCrumbs(theme),
		prompt:    ui.NewPrompt(theme),
		flashBar:  ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(theme),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.notifications = views.NewNotificationList(theme, vm)
	a.outbox = views.NewOutboxList(theme, vm)
	a.thread = views.NewMessageThread(theme, vm)
	a.components = map[string]ui.Component{
		pageNotifications: a.notifications,
		pageOutbox:        a.outbox,
		pageThread:        a.thread,
		pageHelp:          views.NewHelpView(theme),
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func runeKey(r rune, label, help string, fn func()) *keys.Action {
	return &keys.Action{Key: tcell.KeyRune, Rune: r, Label: label, Help: help, Handler: fn}
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(runeKey(':', ":", "Command", func() { a.showPrompt(ui.PromptCommand) }))
	a.registry.AddGlobal(runeKey('/', "/", "Filter", func() {
		a.pages.Reset(pageNotifications)
		a.showPrompt(ui.PromptFilter)
	}))
	a.registry.AddGlobal(runeKey('n', "n", "Notifications", func() { a.pages.Reset(pageNotifications) }))
	a.registry.AddGlobal(runeKey('o', "o", "Outbox", func() { a.pages.Push(pageOutbox) }))
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyCtrlS, Label: "Ctrl-S", Help: "Sync", Handler: func() { a.runSync(false, "") }})
	a.registry.AddGlobal(runeKey('?', "?", "Help", func() { a.pages.Push(pageHelp) }))
	a.registry.AddGlobal(runeKey('q', "q", "Quit", func() { a.Stop() }))

	a.registry.AddView(pageNotifications, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Help: "Read", Handler: a.markSelectedRead})
	a.registry.AddView(pageNotifications, runeKey('r', "r", "Read", a.markSelectedRead))
	a.registry.AddView(pageNotifications, runeKey('R', "R", "Read all", func() {
		a.async(func(ctx context.Context) error { return a.vm.MarkAllRead(ctx) }, a.notifications.Refresh)
	}))
	a.registry.AddView(pageNotifications, runeKey('u', "u", "Refresh", func() {
		a.async(func(ctx context.Context) error {
			snap, err := a.client.RefreshNotifications(ctx)
			if err != nil {
				return err
			}
			a.vm.SetNotifications(*snap)
			if snap.LastError != "" {
				a.flash.Warn(snap.LastError)
			}
			return nil
		}, a.notifications.Refresh)
	}))

	a.registry.AddView(pageOutbox, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Help: "Open", Handler: func() {
		if e, ok := a.outbox.Selected(); ok {
			a.openConversation(e.ConversationID)
		}
	}})
	a.registry.AddView(pageOutbox, runeKey('y', "y", "Retry", func() { a.runSync(true, "") }))
	a.registry.AddView(pageOutbox, runeKey('x', "x", "Discard", func() {
		e, ok := a.outbox.Selected()
		if !ok {
			return
		}
		a.async(func(ctx context.Context) error {
			if _, err := a.client.Discard(ctx, e.ID); err != nil {
				return err
			}
			a.flash.Info(fmt.Sprintf("discarded entry %d", e.ID))
			return a.vm.LoadPending(ctx)
		}, a.outbox.Refresh)
	}))

	a.registry.AddView(pageThread, runeKey('i', "i", "Compose", func() { a.app.SetFocus(a.thread.Composer()) }))
	a.registry.AddView(pageThread, runeKey('u', "u", "Pull", func() {
		conv := a.vm.Active()
		a.async(func(ctx context.Context) error { return a.vm.Open(ctx, conv, true) }, a.thread.Refresh)
	}))
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, 0, len(stack))
		for _, p := range stack {
			names = append(names, a.components[p].Name())
		}
		a.crumbs.Update(names)
		top := a.pages.Current()
		a.menu.Update(a.registry.Hints(top))
		a.components[top].Refresh()
		if top == pageThread {
			a.app.SetFocus(a.thread.Messages())
		} else {
			a.app.SetFocus(a.components[top])
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.notifications.SetFilter(text)
			return
		}
		a.execute(ParseCommand(text))
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.notifications.SetFilter("")
		}
		a.hidePrompt()
	})

	a.thread.SetOnSend(func(text string) {
		a.async(func(ctx context.Context) error {
			entry, err := a.vm.Send(ctx, text)
			if err != nil {
				return err
			}
			_ = a.vm.SaveDraft(ctx, "")
			a.flash.Info(fmt.Sprintf("queued as entry %d", entry.ID))
			return nil
		}, a.outbox.Refresh)
	})
	a.thread.SetOnDraft(func(text string) {
		a.app.SetFocus(a.thread.Messages())
		a.async(func(ctx context.Context) error { return a.vm.SaveDraft(ctx, text) }, nil)
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c, true, false)
	}

	header := tview.NewFlex().
		AddItem(a.info, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 24, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		// Inputs handle their own keys, Esc included.
		if a.prompt.HasFocus() || a.thread.Composer().HasFocus() {
			return ev
		}
		if ev.Key() == tcell.KeyEscape {
			if a.pages.Current() == pageNotifications {
				a.notifications.SetFilter("")
			}
			a.pages.Pop()
			return nil
		}
		if a.registry.HandleEvent(a.pages.Current(), ev) {
			return nil
		}
		return ev
	})
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	if a.pages.Current() == pageThread {
		a.app.SetFocus(a.thread.Messages())
		return
	}
	a.app.SetFocus(a.components[a.pages.Current()])
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "":
	case "quit":
		a.Stop()
	case "help":
		a.pages.Push(pageHelp)
	case "notifications":
		a.pages.Reset(pageNotifications)
	case "outbox":
		a.pages.Push(pageOutbox)
	case "open":
		if cmd.Arg(0) == "" {
			a.flash.Warn("usage: :open <conversation>")
			return
		}
		a.openConversation(cmd.Arg(0))
	case "login":
		token := cmd.Rest(0)
		a.async(func(ctx context.Context) error {
			resp, err := a.client.Login(ctx, token)
			if err != nil {
				return err
			}
			a.thread.SetSelf(resp.Subject)
			a.flash.Info("logged in as " + resp.Subject)
			return a.vm.LoadStatus(ctx)
		}, nil)
	case "logout":
		a.async(func(ctx context.Context) error {
			if _, err := a.client.Logout(ctx); err != nil {
				return err
			}
			a.flash.Info("logged out")
			return a.vm.LoadStatus(ctx)
		}, nil)
	case "offline":
		on := cmd.Arg(0) != "off"
		a.async(func(ctx context.Context) error {
			_, err := a.client.SetOffline(ctx, on)
			if err == nil {
				err = a.vm.LoadStatus(ctx)
			}
			return err
		}, nil)
	case "sync":
		a.runSync(false, "")
	case "retry":
		a.runSync(true, cmd.Arg(0))
	case "clear":
		req := &api.ClearCacheRequest{ConversationID: cmd.Arg(0)}
		if req.ConversationID == "all" {
			req = &api.ClearCacheRequest{All: true}
		}
		a.async(func(ctx context.Context) error {
			ack, err := a.client.ClearCache(ctx, req)
			if err != nil {
				return err
			}
			a.flash.Info(ack.Message)
			if req.All || req.ConversationID == a.vm.Active() {
				_ = a.vm.Open(ctx, a.vm.Active(), false)
			}
			return a.vm.LoadPending(ctx)
		}, a.refreshCurrent)
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
	}
}

func (a *App) openConversation(conv string) {
	a.async(func(ctx context.Context) error {
		if err := a.vm.Open(ctx, conv, true); err != nil {
			return err
		}
		draft, err := a.vm.Draft(ctx)
		if err != nil {
			return err
		}
		a.app.QueueUpdate(func() {
			a.thread.SetDraft(draft)
			a.pages.Push(pageThread)
		})
		return nil
	}, a.thread.Refresh)
}

func (a *App) markSelectedRead() {
	id := a.notifications.Selected()
	if id == "" {
		return
	}
	a.async(func(ctx context.Context) error { return a.vm.MarkRead(ctx, id) }, a.notifications.Refresh)
}

func (a *App) runSync(retry bool, conv string) {
	a.async(func(ctx context.Context) error {
		var (
			resp *api.SyncResponse
			err  error
		)
		if retry {
			resp, err = a.client.Retry(ctx, conv)
		} else {
			resp, err = a.client.Sync(ctx)
		}
		if err != nil {
			return err
		}
		a.flash.Info(fmt.Sprintf("sent %d, failed %d, pending %d", resp.Sent, resp.Failed, resp.Pending))
		return a.vm.LoadPending(ctx)
	}, a.outbox.Refresh)
}

// async runs fn off the UI goroutine, reports its error in the flash bar
// and then runs redraw on the UI goroutine.
func (a *App) async(fn func(ctx context.Context) error, redraw func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.flash.Err(err)
		}
		a.app.QueueUpdateDraw(func() {
			if redraw != nil {
				redraw()
			}
			a.flashBar.Update(a.flash.Current())
		})
	}()
}

func (a *App) refreshCurrent() {
	if c, ok := a.components[a.pages.Current()]; ok {
		c.Refresh()
	}
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	a.pages.Reset(pageNotifications)
	a.async(func(ctx context.Context) error {
		if err := a.vm.LoadStatus(ctx); err != nil {
			return err
		}
		if st := a.vm.Status(); st != nil {
			a.thread.SetSelf(st.Subject)
			if !st.Authenticated {
				a.flash.Warn("not logged in, use :login <token>")
			}
		}
		if err := a.vm.LoadNotifications(ctx); err != nil {
			return err
		}
		return a.vm.LoadPending(ctx)
	}, a.refreshCurrent)

	go a.pollStatus()
	go a.watch(a.watchNotifications)
	go a.watch(a.watchEvents)

	defer a.cancel()
	return a.app.Run()
}

func (a *App) pollStatus() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			if err := a.vm.LoadStatus(ctx); err != nil {
				a.flash.Err(err)
			}
			cancel()
			st := a.vm.Status()
			a.app.QueueUpdateDraw(func() {
				a.info.Update(a.session, st)
				a.statusBar.Update(st)
				a.flashBar.Update(a.flash.Current())
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// watch keeps a stream open, reopening it with backoff until the app stops.
func (a *App) watch(stream func(ctx context.Context) error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2}
	for a.ctx.Err() == nil {
		start := time.Now()
		_ = stream(a.ctx)
		if time.Since(start) > time.Minute {
			b.Reset()
		}
		select {
		case <-time.After(b.Duration()):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) watchNotifications(ctx context.Context) error {
	s, err := a.client.WatchNotifications(ctx)
	if err != nil {
		return err
	}
	for {
		snap, err := s.Recv()
		if err != nil {
			return err
		}
		a.vm.SetNotifications(*snap)
		a.app.QueueUpdateDraw(func() {
			if a.pages.Current() == pageNotifications {
				a.notifications.Refresh()
			}
		})
	}
}

func (a *App) watchEvents(ctx context.Context) error {
	s, err := a.client.WatchEvents(ctx, "")
	if err != nil {
		return err
	}
	for {
		env, err := s.Recv()
		if err != nil {
			return err
		}
		a.handleEvent(ctx, env)
	}
}

func (a *App) handleEvent(ctx context.Context, env *api.EventEnvelope) {
	switch {
	case strings.HasPrefix(env.Kind, "outbox."):
		if env.Kind == bus.OutboxFailed {
			var p bus.OutboxEntryEvent
			if json.Unmarshal(env.Payload, &p) == nil {
				a.flash.Warn("entry " + strconv.FormatInt(p.EntryID, 10) + " failed: " + p.Error)
			}
		}
		if err := a.vm.LoadPending(ctx); err != nil {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.outbox.Refresh()
			a.flashBar.Update(a.flash.Current())
		})
	case env.Kind == bus.CacheUpdated:
		var p bus.CacheUpdatedEvent
		conv := a.vm.Active()
		if json.Unmarshal(env.Payload, &p) != nil || conv == "" || p.ConversationID != conv {
			return
		}
		if err := a.vm.Open(ctx, conv, false); err != nil {
			return
		}
		a.app.QueueUpdateDraw(a.thread.Refresh)
	case env.Kind == bus.NotificationReceived:
		var r notify.Record
		if json.Unmarshal(env.Payload, &r) == nil && r.Actor.Username != "" {
			a.flash.Info("@" + r.Actor.Username + ": " + r.Content)
		}
	}
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
