// Package storetest is a conformance suite every store engine must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/outpost/internal/store"
)

// Factory returns a fresh, uninitialized store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run executes the suite against the engine built by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InitIsIdempotent", testInitIdempotent},
		{"SaveMessageUpsert", testSaveMessageUpsert},
		{"GetMessagesNewestFirst", testGetMessagesOrder},
		{"GetMessagesDefaultLimit", testGetMessagesDefaultLimit},
		{"Drafts", testDrafts},
		{"AddToPendingQueue", testAddToPendingQueue},
		{"PendingScopeAndOrder", testPendingScopeAndOrder},
		{"MarkAsSentPromotes", testMarkAsSent},
		{"MarkAsSentMissing", testMarkAsSentMissing},
		{"MarkAsFailedAndRetry", testMarkAsFailedAndRetry},
		{"DeletePending", testDeletePending},
		{"LastSync", testLastSync},
		{"CheckpointIsSeparate", testCheckpoint},
		{"ClearAll", testClearAll},
		{"DeleteConversationCache", testDeleteConversationCache},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, s.Init(context.Background()))
			tc.fn(t, s)
		})
	}
}

func queue(t *testing.T, s store.Store, conv, content string) *store.PendingEntry {
	t.Helper()
	e, err := s.AddToPendingQueue(context.Background(), &store.PendingEntry{ConversationID: conv, Content: content})
	require.NoError(t, err)
	return e
}

func testInitIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	queue(t, s, "c1", "hello")
	require.NoError(t, s.Init(ctx))

	pending, err := s.GetPendingMessages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "re-init must not destroy data")
}

func testSaveMessageUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	msg := &store.CachedMessage{
		ID: "m1", ConversationID: "c1", Content: "first", SenderID: "u1",
		Timestamp: 1000, SyncedAt: 5000, Metadata: map[string]string{"delivery": "server"},
	}
	require.NoError(t, s.SaveMessage(ctx, msg))

	again := *msg
	again.Content = "rewritten"
	again.SyncedAt = 3000
	require.NoError(t, s.SaveMessage(ctx, &again))

	msgs, err := s.GetMessages(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, int64(5000), msgs[0].SyncedAt)
	assert.Equal(t, "server", msgs[0].Metadata["delivery"])
	assert.NotZero(t, msgs[0].SavedAt)
}

func testGetMessagesOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, ts := range []int64{300, 100, 200} {
		require.NoError(t, s.SaveMessage(ctx, &store.CachedMessage{
			ID: fmt.Sprintf("m%d", i), ConversationID: "c1", Content: "x", Timestamp: ts,
		}))
	}
	require.NoError(t, s.SaveMessage(ctx, &store.CachedMessage{ID: "other", ConversationID: "c2", Timestamp: 999}))

	msgs, err := s.GetMessages(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(300), msgs[0].Timestamp)
	assert.Equal(t, int64(200), msgs[1].Timestamp)
}

func testGetMessagesDefaultLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range store.DefaultMessageLimit + 10 {
		require.NoError(t, s.SaveMessage(ctx, &store.CachedMessage{
			ID: fmt.Sprintf("m%03d", i), ConversationID: "c1", Timestamp: int64(i + 1),
		}))
	}
	msgs, err := s.GetMessages(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, store.DefaultMessageLimit)
}

func testDrafts(t *testing.T, s store.Store) {
	ctx := context.Background()
	d, err := s.GetDraft(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, s.SaveDraft(ctx, "c1", "hel"))
	require.NoError(t, s.SaveDraft(ctx, "c1", "hello"))
	d, err = s.GetDraft(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "hello", d.Content)
	assert.NotZero(t, d.SavedAt)

	require.NoError(t, s.DeleteDraft(ctx, "c1"))
	d, err = s.GetDraft(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func testAddToPendingQueue(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := queue(t, s, "c1", "hi")
	assert.NotZero(t, e.ID)
	assert.NotEmpty(t, e.ClientMsgID)
	assert.Equal(t, store.StatusPending, e.Status)
	assert.NotZero(t, e.CreatedAt)

	keyed, err := s.AddToPendingQueue(ctx, &store.PendingEntry{ConversationID: "c1", Content: "k", ClientMsgID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", keyed.ClientMsgID)
	assert.Greater(t, keyed.ID, e.ID)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi", got.Content)

	missing, err := s.GetEntry(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testPendingScopeAndOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := queue(t, s, "c1", "a")
	queue(t, s, "c2", "b")
	c := queue(t, s, "c1", "c")

	all, err := s.GetPendingMessages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := s.GetPendingMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, a.ID, scoped[0].ID)
	assert.Equal(t, c.ID, scoped[1].ID)
}

func testMarkAsSent(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := queue(t, s, "c1", "hello")

	confirmed := &store.CachedMessage{ID: "srv-1", ConversationID: "c1", Content: "hello", SenderID: "me", Timestamp: 1234, SyncedAt: 2000}
	require.NoError(t, s.MarkAsSent(ctx, e.ID, confirmed))

	pending, err := s.GetPendingMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	msgs, err := s.GetMessages(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.Equal(t, int64(2000), msgs[0].SyncedAt)
}

func testMarkAsSentMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.MarkAsSent(ctx, 999, &store.CachedMessage{ID: "srv-x", ConversationID: "c1"})
	require.ErrorIs(t, err, store.ErrNotFound)

	msgs, err := s.GetMessages(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "nothing may be cached for a missing entry")

	assert.ErrorIs(t, s.MarkAsFailed(ctx, 999, "x"), store.ErrNotFound)
	assert.ErrorIs(t, s.MarkAsPending(ctx, 999), store.ErrNotFound)
}

func testMarkAsFailedAndRetry(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := queue(t, s, "c1", "hello")

	require.NoError(t, s.MarkAsFailed(ctx, e.ID, "503 from server"))
	pending, err := s.GetPendingMessages(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := s.GetFailedMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "503 from server", failed[0].LastError)
	assert.Equal(t, 1, failed[0].Attempts)
	assert.Equal(t, store.StatusFailed, failed[0].Status)

	require.NoError(t, s.MarkAsPending(ctx, e.ID))
	pending, err = s.GetPendingMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e.ClientMsgID, pending[0].ClientMsgID)
	assert.Equal(t, 1, pending[0].Attempts)
}

func testDeletePending(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := queue(t, s, "c1", "oops")
	require.NoError(t, s.DeletePending(ctx, e.ID))
	assert.ErrorIs(t, s.DeletePending(ctx, e.ID), store.ErrNotFound)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testLastSync(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts, err := s.GetLastSync(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SetLastSync(ctx, "c1", 1111))
	require.NoError(t, s.SetLastSync(ctx, "c1", 2222))
	ts, err = s.GetLastSync(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2222), ts)
}

func testCheckpoint(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts, err := s.GetCheckpoint(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SetCheckpoint(ctx, "c1", 500))
	require.NoError(t, s.SetLastSync(ctx, "c1", 9999))
	ts, err = s.GetCheckpoint(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), ts)
	last, err := s.GetLastSync(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(9999), last)
}

func testClearAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveMessage(ctx, &store.CachedMessage{ID: "m1", ConversationID: "c1", Timestamp: 1}))
	require.NoError(t, s.SaveDraft(ctx, "c1", "d"))
	require.NoError(t, s.SetLastSync(ctx, "c1", 10))
	queue(t, s, "c1", "p")

	require.NoError(t, s.ClearAll(ctx))

	msgs, err := s.GetMessages(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	d, err := s.GetDraft(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, d)
	ts, err := s.GetLastSync(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, ts)
	pending, err := s.GetPendingMessages(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func testDeleteConversationCache(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveMessage(ctx, &store.CachedMessage{ID: "m1", ConversationID: "c1", Timestamp: 1}))
	require.NoError(t, s.SaveMessage(ctx, &store.CachedMessage{ID: "m2", ConversationID: "c2", Timestamp: 1}))
	require.NoError(t, s.SaveDraft(ctx, "c1", "d"))
	require.NoError(t, s.SetLastSync(ctx, "c1", 10))
	require.NoError(t, s.SetCheckpoint(ctx, "c1", 10))
	queue(t, s, "c1", "unsent")

	require.NoError(t, s.DeleteConversationCache(ctx, "c1"))

	msgs, err := s.GetMessages(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	d, err := s.GetDraft(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, d)
	ts, err := s.GetLastSync(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, ts)
	ts, err = s.GetCheckpoint(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, ts)

	other, err := s.GetMessages(ctx, "c2", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
	pending, err := s.GetPendingMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "outbox entries survive a cache delete")
}
