package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/outpost/internal/store"
)

// SaveDraft overwrites the draft of a conversation.
func (d *DB) SaveDraft(ctx context.Context, conversationID, content string) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO drafts (conversation_id, content, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			content = excluded.content,
			saved_at = excluded.saved_at`,
		conversationID, content, time.Now().UnixMilli())
	return err
}

func (d *DB) GetDraft(ctx context.Context, conversationID string) (*store.Draft, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	var dr store.Draft
	err = db.QueryRowContext(ctx, `SELECT conversation_id, content, saved_at FROM drafts WHERE conversation_id = ?`, conversationID).
		Scan(&dr.ConversationID, &dr.Content, &dr.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dr, nil
}

func (d *DB) DeleteDraft(ctx context.Context, conversationID string) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM drafts WHERE conversation_id = ?`, conversationID)
	return err
}
