package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matheus3301/outpost/internal/store"
)

func (s *Store) AddToPendingQueue(ctx context.Context, entry *store.PendingEntry) (*store.PendingEntry, error) {
	e, err := store.Prepare(s.ids, entry, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(e.ID), data, 0)
		pipe.ZAdd(ctx, s.statusKey(store.StatusPending), redis.Z{Score: float64(e.CreatedAt), Member: member(e.ID)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue outbox: %w", err)
	}
	return e, nil
}

func (s *Store) GetPendingMessages(ctx context.Context, conversationID string) ([]store.PendingEntry, error) {
	return s.entries(ctx, store.StatusPending, conversationID)
}

func (s *Store) GetFailedMessages(ctx context.Context, conversationID string) ([]store.PendingEntry, error) {
	return s.entries(ctx, store.StatusFailed, conversationID)
}

func (s *Store) entries(ctx context.Context, status store.EntryStatus, conversationID string) ([]store.PendingEntry, error) {
	members, err := s.rdb.ZRange(ctx, s.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	var out []store.PendingEntry
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad outbox member %q: %w", m, err)
		}
		e, err := getJSON[store.PendingEntry](ctx, s.rdb, s.entryKey(id))
		if err != nil {
			return nil, err
		}
		if e == nil || e.Status != status {
			continue
		}
		if conversationID != "" && e.ConversationID != conversationID {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*store.PendingEntry, error) {
	return getJSON[store.PendingEntry](ctx, s.rdb, s.entryKey(id))
}

// MarkAsSent removes the entry and caches the confirmed message in one
// MULTI/EXEC guarded by WATCH on both records.
func (s *Store) MarkAsSent(ctx context.Context, id int64, confirmed *store.CachedMessage) error {
	ek, mk := s.entryKey(id), s.msgKey(confirmed.ID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		e, err := getJSON[store.PendingEntry](ctx, tx, ek)
		if err != nil {
			return err
		}
		if e == nil {
			return store.ErrNotFound
		}
		prev, err := getJSON[store.CachedMessage](ctx, tx, mk)
		if err != nil {
			return err
		}
		next := mergeMessage(prev, confirmed, time.Now().UnixMilli())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, ek)
			pipe.ZRem(ctx, s.statusKey(store.StatusPending), member(id))
			pipe.ZRem(ctx, s.statusKey(store.StatusFailed), member(id))
			return s.queueMessage(ctx, pipe, next)
		})
		return err
	}, ek, mk)
}

func (s *Store) MarkAsFailed(ctx context.Context, id int64, reason string) error {
	return s.move(ctx, id, func(e *store.PendingEntry) {
		e.Status = store.StatusFailed
		e.LastError = reason
		e.Attempts++
	})
}

func (s *Store) MarkAsPending(ctx context.Context, id int64) error {
	return s.move(ctx, id, func(e *store.PendingEntry) {
		e.Status = store.StatusPending
	})
}

// move rewrites an entry and keeps the status indexes in step with it.
func (s *Store) move(ctx context.Context, id int64, fn func(*store.PendingEntry)) error {
	key := s.entryKey(id)
	return s.watch(ctx, func(tx *redis.Tx) error {
		e, err := getJSON[store.PendingEntry](ctx, tx, key)
		if err != nil {
			return err
		}
		if e == nil {
			return store.ErrNotFound
		}
		from := e.Status
		fn(e)
		e.UpdatedAt = time.Now().UnixMilli()
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZRem(ctx, s.statusKey(from), member(id))
			pipe.ZAdd(ctx, s.statusKey(e.Status), redis.Z{Score: float64(e.CreatedAt), Member: member(id)})
			return nil
		})
		return err
	}, key)
}

func (s *Store) DeletePending(ctx context.Context, id int64) error {
	key := s.entryKey(id)
	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.statusKey(store.StatusPending), member(id))
			pipe.ZRem(ctx, s.statusKey(store.StatusFailed), member(id))
			return nil
		})
		return err
	}, key)
}
