package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/outpost/internal/store"
)

const entryColumns = `id, client_msg_id, conversation_id, content, status, attempts, last_error, created_at, updated_at`

// AddToPendingQueue appends a new pending entry to the outbox.
func (d *DB) AddToPendingQueue(ctx context.Context, entry *store.PendingEntry) (*store.PendingEntry, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	e, err := store.Prepare(d.ids, entry, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO outbox (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClientMsgID, e.ConversationID, e.Content, string(e.Status), e.Attempts, e.LastError, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("queue outbox: %w", err)
	}
	return e, nil
}

func (d *DB) GetPendingMessages(ctx context.Context, conversationID string) ([]store.PendingEntry, error) {
	return d.entries(ctx, store.StatusPending, conversationID)
}

func (d *DB) GetFailedMessages(ctx context.Context, conversationID string) ([]store.PendingEntry, error) {
	return d.entries(ctx, store.StatusFailed, conversationID)
}

func (d *DB) entries(ctx context.Context, status store.EntryStatus, conversationID string) ([]store.PendingEntry, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM outbox
		WHERE status = ? AND (? = '' OR conversation_id = ?)
		ORDER BY id ASC`, string(status), conversationID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []store.PendingEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*store.PendingEntry, error) {
	var (
		e      store.PendingEntry
		status string
	)
	if err := s.Scan(&e.ID, &e.ClientMsgID, &e.ConversationID, &e.Content, &status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Status = store.EntryStatus(status)
	return &e, nil
}

func (d *DB) GetEntry(ctx context.Context, id int64) (*store.PendingEntry, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	e, err := scanEntry(db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM outbox WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MarkAsSent deletes the pending entry and caches the confirmed message in
// one transaction.
func (d *DB) MarkAsSent(ctx context.Context, id int64, confirmed *store.CachedMessage) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pending %d: %w", id, err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if err := saveMessage(ctx, tx, confirmed); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) MarkAsFailed(ctx context.Context, id int64, reason string) error {
	return d.updateEntry(ctx, `
		UPDATE outbox SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`, string(store.StatusFailed), reason, time.Now().UnixMilli(), id)
}

func (d *DB) MarkAsPending(ctx context.Context, id int64) error {
	return d.updateEntry(ctx, `UPDATE outbox SET status = ?, updated_at = ? WHERE id = ?`,
		string(store.StatusPending), time.Now().UnixMilli(), id)
}

func (d *DB) DeletePending(ctx context.Context, id int64) error {
	return d.updateEntry(ctx, `DELETE FROM outbox WHERE id = ?`, id)
}

func (d *DB) updateEntry(ctx context.Context, query string, args ...any) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
