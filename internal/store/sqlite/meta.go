package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/outpost/internal/store"
)

func (d *DB) SetLastSync(ctx context.Context, conversationID string, ts int64) error {
	return d.setMeta(ctx, store.LastSyncKey(conversationID), ts)
}

func (d *DB) GetLastSync(ctx context.Context, conversationID string) (int64, error) {
	return d.getMeta(ctx, store.LastSyncKey(conversationID))
}

func (d *DB) SetCheckpoint(ctx context.Context, conversationID string, ts int64) error {
	return d.setMeta(ctx, store.CheckpointKey(conversationID), ts)
}

func (d *DB) GetCheckpoint(ctx context.Context, conversationID string) (int64, error) {
	return d.getMeta(ctx, store.CheckpointKey(conversationID))
}

func (d *DB) setMeta(ctx context.Context, key string, ts int64) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, ts, time.Now().UnixMilli())
	return err
}

func (d *DB) getMeta(ctx context.Context, key string) (int64, error) {
	db, err := d.conn()
	if err != nil {
		return 0, err
	}
	var ts int64
	err = db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return ts, err
}

// ClearAll empties every partition, one statement per table.
func (d *DB) ClearAll(ctx context.Context) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	for _, table := range []string{"messages", "drafts", "outbox", "sync_meta"} {
		if _, err := db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// DeleteConversationCache drops the conversation's cached messages, draft
// and sync keys in one transaction. Outbox entries are kept.
func (d *DB) DeleteConversationCache(ctx context.Context, conversationID string) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct {
		query string
		arg   string
	}{
		{`DELETE FROM messages WHERE conversation_id = ?`, conversationID},
		{`DELETE FROM drafts WHERE conversation_id = ?`, conversationID},
		{`DELETE FROM sync_meta WHERE key = ?`, store.LastSyncKey(conversationID)},
		{`DELETE FROM sync_meta WHERE key = ?`, store.CheckpointKey(conversationID)},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, s.arg); err != nil {
			return fmt.Errorf("delete conversation cache: %w", err)
		}
	}
	return tx.Commit()
}
