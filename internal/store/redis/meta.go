package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/matheus3301/outpost/internal/store"
)

func (s *Store) SetLastSync(ctx context.Context, conversationID string, ts int64) error {
	return s.rdb.HSet(ctx, s.metaKey(), store.LastSyncKey(conversationID), ts).Err()
}

func (s *Store) GetLastSync(ctx context.Context, conversationID string) (int64, error) {
	return s.metaInt(ctx, store.LastSyncKey(conversationID))
}

func (s *Store) SetCheckpoint(ctx context.Context, conversationID string, ts int64) error {
	return s.rdb.HSet(ctx, s.metaKey(), store.CheckpointKey(conversationID), ts).Err()
}

func (s *Store) GetCheckpoint(ctx context.Context, conversationID string) (int64, error) {
	return s.metaInt(ctx, store.CheckpointKey(conversationID))
}

func (s *Store) metaInt(ctx context.Context, field string) (int64, error) {
	ts, err := s.rdb.HGet(ctx, s.metaKey(), field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ts, err
}

// ClearAll deletes every partition's keys, one MULTI per partition.
func (s *Store) ClearAll(ctx context.Context) error {
	partitions := []string{"msg:*", "conv:*", "draft:*", "outbox*", "meta"}
	for _, p := range partitions {
		keys, err := s.scan(ctx, s.prefix+p)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}
		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		if err != nil {
			return fmt.Errorf("clear %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) scan(ctx context.Context, match string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", match, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// DeleteConversationCache drops the conversation index, its messages, the
// draft and the sync keys. Outbox entries are untouched.
func (s *Store) DeleteConversationCache(ctx context.Context, conversationID string) error {
	conv := s.convKey(conversationID)
	ids, err := s.rdb.ZRange(ctx, conv, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis zrange: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.msgKey(id))
		}
		pipe.Del(ctx, conv, s.draftKey(conversationID))
		pipe.HDel(ctx, s.metaKey(), store.LastSyncKey(conversationID), store.CheckpointKey(conversationID))
		return nil
	})
	return err
}
