// Package store defines the local durable store used by the outbox and the
// message cache, plus an in-memory engine.
package store

import (
	"context"
	"errors"
)

// DefaultMessageLimit is used by GetMessages when limit <= 0.
const DefaultMessageLimit = 50

// ErrNotFound is returned when an outbox entry does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the local durable store. It has four partitions: the message
// cache, drafts, the pending outbox and sync metadata.
type Store interface {
	// Init opens or creates the store. It is idempotent and never destroys
	// existing data.
	Init(ctx context.Context) error
	Close() error

	SaveMessage(ctx context.Context, msg *CachedMessage) error
	// GetMessages returns the newest messages of a conversation first.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]CachedMessage, error)

	SaveDraft(ctx context.Context, conversationID, content string) error
	// GetDraft returns nil when the conversation has no draft.
	GetDraft(ctx context.Context, conversationID string) (*Draft, error)
	DeleteDraft(ctx context.Context, conversationID string) error

	// AddToPendingQueue assigns the entry id, client message id (when empty),
	// status and creation time, then appends it to the outbox.
	AddToPendingQueue(ctx context.Context, entry *PendingEntry) (*PendingEntry, error)
	// GetPendingMessages returns pending entries oldest first. An empty
	// conversationID means every conversation.
	GetPendingMessages(ctx context.Context, conversationID string) ([]PendingEntry, error)
	GetFailedMessages(ctx context.Context, conversationID string) ([]PendingEntry, error)
	// GetEntry returns nil when the entry does not exist.
	GetEntry(ctx context.Context, id int64) (*PendingEntry, error)
	// MarkAsSent removes the entry from the outbox and caches confirmed in
	// one transaction.
	MarkAsSent(ctx context.Context, id int64, confirmed *CachedMessage) error
	MarkAsFailed(ctx context.Context, id int64, reason string) error
	MarkAsPending(ctx context.Context, id int64) error
	DeletePending(ctx context.Context, id int64) error

	SetLastSync(ctx context.Context, conversationID string, ts int64) error
	// GetLastSync returns 0 when the conversation was never synced.
	GetLastSync(ctx context.Context, conversationID string) (int64, error)
	// SetCheckpoint stores the newest server timestamp pulled into the
	// cache. It is kept apart from last-sync, which the outbox stamps with
	// local time.
	SetCheckpoint(ctx context.Context, conversationID string, ts int64) error
	// GetCheckpoint returns 0 when nothing was pulled yet.
	GetCheckpoint(ctx context.Context, conversationID string) (int64, error)

	ClearAll(ctx context.Context) error
	// DeleteConversationCache drops cached messages, the draft and the
	// sync metadata (last-sync and checkpoint) of a conversation. Outbox entries are kept.
	DeleteConversationCache(ctx context.Context, conversationID string) error
}

// LastSyncKey is the metadata key holding a conversation's last sync time.
func LastSyncKey(conversationID string) string {
	return "last_sync:" + conversationID
}

// CheckpointKey is the metadata key holding a conversation's cache pull
// checkpoint.
func CheckpointKey(conversationID string) string {
	return "pull_checkpoint:" + conversationID
}

// Limit normalizes a GetMessages limit.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	return limit
}
