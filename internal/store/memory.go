package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-memory Store. The daemon falls back to it
// when the durable engine cannot be opened; tests use it as a fake.
type Memory struct {
	ids *IDGenerator

	mu       sync.Mutex
	messages map[string]CachedMessage
	drafts   map[string]Draft
	outbox   map[int64]PendingEntry
	meta     map[string]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory(ids *IDGenerator) *Memory {
	m := &Memory{ids: ids}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.messages = make(map[string]CachedMessage)
	m.drafts = make(map[string]Draft)
	m.outbox = make(map[int64]PendingEntry)
	m.meta = make(map[string]int64)
}

func (m *Memory) Init(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func (m *Memory) SaveMessage(ctx context.Context, msg *CachedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveMessageLocked(msg, time.Now().UnixMilli())
	return nil
}

func (m *Memory) saveMessageLocked(msg *CachedMessage, now int64) {
	next := *msg
	next.Metadata = maps.Clone(msg.Metadata)
	if prev, ok := m.messages[msg.ID]; ok {
		next = prev
		next.SyncedAt = max(prev.SyncedAt, msg.SyncedAt)
	}
	next.SavedAt = now
	m.messages[msg.ID] = next
}

func (m *Memory) GetMessages(ctx context.Context, conversationID string, limit int) ([]CachedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msgs []CachedMessage
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			msg.Metadata = maps.Clone(msg.Metadata)
			msgs = append(msgs, msg)
		}
	}
	slices.SortFunc(msgs, func(a, b CachedMessage) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if n := Limit(limit); len(msgs) > n {
		msgs = msgs[:n]
	}
	return msgs, nil
}

func (m *Memory) SaveDraft(ctx context.Context, conversationID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[conversationID] = Draft{ConversationID: conversationID, Content: content, SavedAt: time.Now().UnixMilli()}
	return nil
}

func (m *Memory) GetDraft(ctx context.Context, conversationID string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[conversationID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) DeleteDraft(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, conversationID)
	return nil
}

func (m *Memory) AddToPendingQueue(ctx context.Context, entry *PendingEntry) (*PendingEntry, error) {
	e, err := Prepare(m.ids, entry, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox[e.ID] = *e
	return e, nil
}

func (m *Memory) GetPendingMessages(ctx context.Context, conversationID string) ([]PendingEntry, error) {
	return m.entries(conversationID, StatusPending), nil
}

func (m *Memory) GetFailedMessages(ctx context.Context, conversationID string) ([]PendingEntry, error) {
	return m.entries(conversationID, StatusFailed), nil
}

func (m *Memory) entries(conversationID string, status EntryStatus) []PendingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PendingEntry
	for _, e := range m.outbox {
		if e.Status != status {
			continue
		}
		if conversationID != "" && e.ConversationID != conversationID {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b PendingEntry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *Memory) GetEntry(ctx context.Context, id int64) (*PendingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) MarkAsSent(ctx context.Context, id int64, confirmed *CachedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outbox[id]; !ok {
		return ErrNotFound
	}
	delete(m.outbox, id)
	m.saveMessageLocked(confirmed, time.Now().UnixMilli())
	return nil
}

func (m *Memory) MarkAsFailed(ctx context.Context, id int64, reason string) error {
	return m.update(id, func(e *PendingEntry) {
		e.Status = StatusFailed
		e.LastError = reason
		e.Attempts++
	})
}

func (m *Memory) MarkAsPending(ctx context.Context, id int64) error {
	return m.update(id, func(e *PendingEntry) {
		e.Status = StatusPending
	})
}

func (m *Memory) update(id int64, fn func(*PendingEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[id]
	if !ok {
		return ErrNotFound
	}
	fn(&e)
	e.UpdatedAt = time.Now().UnixMilli()
	m.outbox[id] = e
	return nil
}

func (m *Memory) DeletePending(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outbox[id]; !ok {
		return ErrNotFound
	}
	delete(m.outbox, id)
	return nil
}

func (m *Memory) SetLastSync(ctx context.Context, conversationID string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[LastSyncKey(conversationID)] = ts
	return nil
}

func (m *Memory) GetLastSync(ctx context.Context, conversationID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[LastSyncKey(conversationID)], nil
}

func (m *Memory) SetCheckpoint(ctx context.Context, conversationID string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[CheckpointKey(conversationID)] = ts
	return nil
}

func (m *Memory) GetCheckpoint(ctx context.Context, conversationID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[CheckpointKey(conversationID)], nil
}

func (m *Memory) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *Memory) DeleteConversationCache(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, msg := range m.messages {
		if msg.ConversationID == conversationID {
			delete(m.messages, id)
		}
	}
	delete(m.drafts, conversationID)
	delete(m.meta, LastSyncKey(conversationID))
	delete(m.meta, CheckpointKey(conversationID))
	return nil
}

var _ Store = (*Memory)(nil)
