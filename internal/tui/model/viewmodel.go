package model

import (
	"context"
	"slices"
	"sync"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/store"
)

// Daemon is the slice of the control API the TUI uses.
type Daemon interface {
	GetStatus(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, token string) (*api.LoginResponse, error)
	Logout(ctx context.Context) (*api.Ack, error)
	SetOffline(ctx context.Context, offline bool) (*api.StatusResponse, error)
	Send(ctx context.Context, conversationID, content string) (*api.SendResponse, error)
	ListPending(ctx context.Context, conversationID string) (*api.ListPendingResponse, error)
	Sync(ctx context.Context) (*api.SyncResponse, error)
	Retry(ctx context.Context, conversationID string) (*api.SyncResponse, error)
	Discard(ctx context.Context, id int64) (*api.Ack, error)
	SaveDraft(ctx context.Context, conversationID, content string) (*api.Ack, error)
	GetDraft(ctx context.Context, conversationID string) (*api.DraftResponse, error)
	ListMessages(ctx context.Context, req *api.ListMessagesRequest) (*api.ListMessagesResponse, error)
	ClearCache(ctx context.Context, req *api.ClearCacheRequest) (*api.Ack, error)
	Notifications(ctx context.Context) (*notify.Snapshot, error)
	MarkRead(ctx context.Context, id string) (*api.MarkReadResponse, error)
	MarkAllRead(ctx context.Context) (*api.MarkReadResponse, error)
}

// ViewModel caches daemon state for the views.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	status        *api.StatusResponse
	notifications notify.Snapshot
	pending       []store.PendingEntry
	messages      []store.CachedMessage
	warning       string
	active        string
}

// NewViewModel creates a view model backed by d.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadNotifications fetches the current notification snapshot.
func (vm *ViewModel) LoadNotifications(ctx context.Context) error {
	snap, err := vm.daemon.Notifications(ctx)
	if err != nil {
		return err
	}
	vm.SetNotifications(*snap)
	return nil
}

// SetNotifications stores a snapshot received from the watch stream.
func (vm *ViewModel) SetNotifications(snap notify.Snapshot) {
	vm.mu.Lock()
	vm.notifications = snap
	vm.mu.Unlock()
}

// LoadPending fetches pending and failed outbox entries, failed first.
func (vm *ViewModel) LoadPending(ctx context.Context) error {
	resp, err := vm.daemon.ListPending(ctx, "")
	if err != nil {
		return err
	}
	entries := append(slices.Clone(resp.Failed), resp.Pending...)
	vm.mu.Lock()
	vm.pending = entries
	vm.mu.Unlock()
	return nil
}

// Open makes conv the active conversation and loads its cached messages,
// pulling from the server when refresh is set.
func (vm *ViewModel) Open(ctx context.Context, conv string, refresh bool) error {
	resp, err := vm.daemon.ListMessages(ctx, &api.ListMessagesRequest{ConversationID: conv, Refresh: refresh})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = conv
	vm.messages = resp.Messages
	vm.warning = resp.Warning
	vm.mu.Unlock()
	return nil
}

// Draft returns the saved draft of the active conversation.
func (vm *ViewModel) Draft(ctx context.Context) (string, error) {
	conv := vm.Active()
	if conv == "" {
		return "", nil
	}
	resp, err := vm.daemon.GetDraft(ctx, conv)
	if err != nil || resp.Draft == nil {
		return "", err
	}
	return resp.Draft.Content, nil
}

// SaveDraft stores text as the active conversation's draft. Empty text
// discards it.
func (vm *ViewModel) SaveDraft(ctx context.Context, text string) error {
	conv := vm.Active()
	if conv == "" {
		return nil
	}
	_, err := vm.daemon.SaveDraft(ctx, conv, text)
	return err
}

// Send queues text in the active conversation and reloads the outbox.
func (vm *ViewModel) Send(ctx context.Context, text string) (*store.PendingEntry, error) {
	conv := vm.Active()
	if conv == "" {
		return nil, ErrNoConversation
	}
	resp, err := vm.daemon.Send(ctx, conv, text)
	if err != nil {
		return nil, err
	}
	_ = vm.LoadPending(ctx)
	return &resp.Entry, nil
}

// MarkRead marks one notification read and updates the cached snapshot
// without waiting for the watch stream.
func (vm *ViewModel) MarkRead(ctx context.Context, id string) error {
	resp, err := vm.daemon.MarkRead(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	for i := range vm.notifications.Notifications {
		if vm.notifications.Notifications[i].ID == id {
			vm.notifications.Notifications[i].Read = true
		}
	}
	vm.notifications.Unread = resp.Unread
	vm.mu.Unlock()
	return nil
}

// MarkAllRead marks every notification read.
func (vm *ViewModel) MarkAllRead(ctx context.Context) error {
	resp, err := vm.daemon.MarkAllRead(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	for i := range vm.notifications.Notifications {
		vm.notifications.Notifications[i].Read = true
	}
	vm.notifications.Unread = resp.Unread
	vm.mu.Unlock()
	return nil
}

// Daemon exposes the underlying API for one-off commands.
func (vm *ViewModel) Daemon() Daemon {
	return vm.daemon
}

// Status returns the last fetched status, or nil.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Notifications returns a copy of the cached snapshot.
func (vm *ViewModel) Notifications() notify.Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	snap := vm.notifications
	snap.Notifications = slices.Clone(snap.Notifications)
	return snap
}

// Pending returns the cached outbox entries.
func (vm *ViewModel) Pending() []store.PendingEntry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.pending)
}

// Messages returns the active conversation's messages, newest first, and
// the warning from the last load.
func (vm *ViewModel) Messages() ([]store.CachedMessage, string) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.messages), vm.warning
}

// Active returns the open conversation id.
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}
