package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/outpost/internal/store"
)

const upsertMessage = `
	INSERT INTO messages (id, conversation_id, content, sender_id, timestamp, metadata, saved_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		saved_at = excluded.saved_at,
		synced_at = MAX(messages.synced_at, excluded.synced_at)`

func saveMessage(ctx context.Context, ex execer, m *store.CachedMessage) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = ex.ExecContext(ctx, upsertMessage,
		m.ID, m.ConversationID, m.Content, m.SenderID, m.Timestamp, string(meta), time.Now().UnixMilli(), m.SyncedAt)
	if err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	return nil
}

// SaveMessage upserts a message by id. An existing row keeps its content.
func (d *DB) SaveMessage(ctx context.Context, m *store.CachedMessage) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return saveMessage(ctx, db, m)
}

// GetMessages returns the newest messages of a conversation first.
func (d *DB) GetMessages(ctx context.Context, conversationID string, limit int) ([]store.CachedMessage, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, conversation_id, content, sender_id, timestamp, metadata, saved_at, synced_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, conversationID, store.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []store.CachedMessage
	for rows.Next() {
		var (
			m    store.CachedMessage
			meta string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.SenderID, &m.Timestamp, &meta, &m.SavedAt, &m.SyncedAt); err != nil {
			return nil, err
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
