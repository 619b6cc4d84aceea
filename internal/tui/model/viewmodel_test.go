package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/store"
)

type fakeDaemon struct {
	Daemon // unimplemented methods panic

	pending  api.ListPendingResponse
	messages map[string][]store.CachedMessage
	sent     []string
	drafts   map[string]string
	snap     notify.Snapshot
}

func (f *fakeDaemon) ListPending(context.Context, string) (*api.ListPendingResponse, error) {
	return &f.pending, nil
}

func (f *fakeDaemon) ListMessages(_ context.Context, req *api.ListMessagesRequest) (*api.ListMessagesResponse, error) {
	resp := &api.ListMessagesResponse{Messages: f.messages[req.ConversationID]}
	if req.Refresh {
		resp.Warning = "offline"
	}
	return resp, nil
}

func (f *fakeDaemon) Send(_ context.Context, conv, content string) (*api.SendResponse, error) {
	f.sent = append(f.sent, conv+":"+content)
	e := store.PendingEntry{ID: int64(len(f.sent)), ConversationID: conv, Content: content, Status: store.StatusPending}
	f.pending.Pending = append(f.pending.Pending, e)
	return &api.SendResponse{Entry: e}, nil
}

func (f *fakeDaemon) GetDraft(_ context.Context, conv string) (*api.DraftResponse, error) {
	text, ok := f.drafts[conv]
	if !ok {
		return &api.DraftResponse{}, nil
	}
	return &api.DraftResponse{Draft: &store.Draft{ConversationID: conv, Content: text}}, nil
}

func (f *fakeDaemon) SaveDraft(_ context.Context, conv, content string) (*api.Ack, error) {
	f.drafts[conv] = content
	return &api.Ack{}, nil
}

func (f *fakeDaemon) Notifications(context.Context) (*notify.Snapshot, error) {
	return &f.snap, nil
}

func (f *fakeDaemon) MarkRead(_ context.Context, id string) (*api.MarkReadResponse, error) {
	return &api.MarkReadResponse{Unread: f.snap.Unread - 1}, nil
}

func (f *fakeDaemon) MarkAllRead(context.Context) (*api.MarkReadResponse, error) {
	return &api.MarkReadResponse{}, nil
}

func newFake() *fakeDaemon {
	return &fakeDaemon{
		messages: map[string][]store.CachedMessage{
			"c1": {{ID: "m2", ConversationID: "c1", Timestamp: 200}, {ID: "m1", ConversationID: "c1", Timestamp: 100}},
		},
		drafts: map[string]string{},
		snap: notify.Snapshot{
			Unread: 2,
			Notifications: []notify.Record{
				{ID: "n1"},
				{ID: "n2"},
			},
		},
	}
}

func TestSendRequiresActiveConversation(t *testing.T) {
	vm := NewViewModel(newFake())
	_, err := vm.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestOpenThenSendReloadsOutbox(t *testing.T) {
	f := newFake()
	vm := NewViewModel(f)
	ctx := context.Background()

	require.NoError(t, vm.Open(ctx, "c1", false))
	msgs, warning := vm.Messages()
	assert.Len(t, msgs, 2)
	assert.Empty(t, warning)
	assert.Equal(t, "c1", vm.Active())

	entry, err := vm.Send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "c1", entry.ConversationID)
	assert.Equal(t, []string{"c1:hello"}, f.sent)
	assert.Len(t, vm.Pending(), 1)
}

func TestOpenKeepsWarning(t *testing.T) {
	vm := NewViewModel(newFake())
	require.NoError(t, vm.Open(context.Background(), "c1", true))
	_, warning := vm.Messages()
	assert.Equal(t, "offline", warning)
}

func TestPendingListsFailedFirst(t *testing.T) {
	f := newFake()
	f.pending = api.ListPendingResponse{
		Pending: []store.PendingEntry{{ID: 1, Status: store.StatusPending}},
		Failed:  []store.PendingEntry{{ID: 2, Status: store.StatusFailed}},
	}
	vm := NewViewModel(f)
	require.NoError(t, vm.LoadPending(context.Background()))
	got := vm.Pending()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestDraftRoundTrip(t *testing.T) {
	vm := NewViewModel(newFake())
	ctx := context.Background()

	text, err := vm.Draft(ctx)
	require.NoError(t, err)
	assert.Empty(t, text, "no conversation open")

	require.NoError(t, vm.Open(ctx, "c1", false))
	require.NoError(t, vm.SaveDraft(ctx, "half written"))
	text, err = vm.Draft(ctx)
	require.NoError(t, err)
	assert.Equal(t, "half written", text)
}

func TestMarkReadUpdatesSnapshot(t *testing.T) {
	vm := NewViewModel(newFake())
	ctx := context.Background()
	require.NoError(t, vm.LoadNotifications(ctx))

	require.NoError(t, vm.MarkRead(ctx, "n1"))
	snap := vm.Notifications()
	assert.Equal(t, 1, snap.Unread)
	assert.True(t, snap.Notifications[0].Read)
	assert.False(t, snap.Notifications[1].Read)

	require.NoError(t, vm.MarkAllRead(ctx))
	snap = vm.Notifications()
	assert.Zero(t, snap.Unread)
	assert.True(t, snap.Notifications[1].Read)
}

func TestNotificationsReturnsCopy(t *testing.T) {
	vm := NewViewModel(newFake())
	require.NoError(t, vm.LoadNotifications(context.Background()))
	snap := vm.Notifications()
	snap.Notifications[0].Read = true
	assert.False(t, vm.Notifications().Notifications[0].Read)
}
