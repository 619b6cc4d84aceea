package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matheus3301/outpost/internal/store"
)

func (s *Store) SaveDraft(ctx context.Context, conversationID, content string) error {
	data, err := json.Marshal(store.Draft{ConversationID: conversationID, Content: content, SavedAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.draftKey(conversationID), data, 0).Err()
}

func (s *Store) GetDraft(ctx context.Context, conversationID string) (*store.Draft, error) {
	return getJSON[store.Draft](ctx, s.rdb, s.draftKey(conversationID))
}

func (s *Store) DeleteDraft(ctx context.Context, conversationID string) error {
	return s.rdb.Del(ctx, s.draftKey(conversationID)).Err()
}
