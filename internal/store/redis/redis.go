// Package redis is an alternate store engine for deployments that keep the
// outbox in a shared Redis instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/store"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, normally "outpost:<session>:".
	Prefix string
}

// maxTxRetries bounds optimistic-lock retries on WATCH conflicts.
const maxTxRetries = 5

// Store is a store.Store backed by Redis. Records are JSON strings; sorted
// sets act as the secondary indexes.
type Store struct {
	rdb    *redis.Client
	prefix string
	ids    *store.IDGenerator
	logger *zap.Logger
}

// New creates a Redis engine. The connection is verified by Init.
func New(cfg Config, ids *store.IDGenerator, logger *zap.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewWithClient(rdb, cfg.Prefix, ids, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, prefix string, ids *store.IDGenerator, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, prefix: prefix, ids: ids, logger: logger}
}

func (s *Store) Init(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	s.logger.Info("redis store ready", zap.String("addr", s.rdb.Options().Addr), zap.String("prefix", s.prefix))
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) msgKey(id string) string     { return s.prefix + "msg:" + id }
func (s *Store) convKey(conv string) string  { return s.prefix + "conv:" + conv }
func (s *Store) draftKey(conv string) string { return s.prefix + "draft:" + conv }
func (s *Store) entryKey(id int64) string    { return fmt.Sprintf("%soutbox:%d", s.prefix, id) }
func (s *Store) metaKey() string             { return s.prefix + "meta" }

func (s *Store) statusKey(st store.EntryStatus) string {
	return s.prefix + "outbox-" + string(st)
}

// member formats an entry id so lexicographic ties in a sorted set keep
// numeric order.
func member(id int64) string { return fmt.Sprintf("%019d", id) }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c getter, key string) (*T, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// watch runs fn under WATCH on keys, retrying when another client touched
// them first.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v: too many conflicts", keys)
}

var _ store.Store = (*Store)(nil)
