package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matheus3301/outpost/internal/store"
)

// mergeMessage applies the upsert rule: an existing message keeps every field
// except savedAt and the max syncedAt.
func mergeMessage(prev *store.CachedMessage, msg *store.CachedMessage, now int64) store.CachedMessage {
	next := *msg
	if prev != nil {
		next = *prev
		next.SyncedAt = max(prev.SyncedAt, msg.SyncedAt)
	}
	next.SavedAt = now
	return next
}

func (s *Store) queueMessage(ctx context.Context, pipe redis.Pipeliner, m store.CachedMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	pipe.Set(ctx, s.msgKey(m.ID), data, 0)
	pipe.ZAdd(ctx, s.convKey(m.ConversationID), redis.Z{Score: float64(m.Timestamp), Member: m.ID})
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, msg *store.CachedMessage) error {
	key := s.msgKey(msg.ID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		prev, err := getJSON[store.CachedMessage](ctx, tx, key)
		if err != nil {
			return err
		}
		next := mergeMessage(prev, msg, time.Now().UnixMilli())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.queueMessage(ctx, pipe, next)
		})
		return err
	}, key)
}

// GetMessages reads the conversation index newest first, then the records.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit int) ([]store.CachedMessage, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.convKey(conversationID), 0, int64(store.Limit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.msgKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	msgs := make([]store.CachedMessage, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m store.CachedMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
