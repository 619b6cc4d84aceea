package sync

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/store"
)

// Fetcher pulls a conversation's messages from the server.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID string, since int64) ([]store.CachedMessage, error)
}

// Engine handles idempotent ingestion of server messages into the message
// cache. Conversations it has pulled once are refreshed on every
// connectivity.online edge.
type Engine struct {
	store   store.Store
	fetcher Fetcher
	rec     *Reconciler
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    <-chan struct{}

	mu      gosync.Mutex
	tracked map[string]bool
}

// NewEngine creates a new sync engine.
func NewEngine(st store.Store, f Fetcher, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:   st,
		fetcher: f,
		rec:     NewReconciler(st, logger),
		bus:     b,
		logger:  logger,
		tracked: make(map[string]bool),
	}
}

// Start refreshes tracked conversations whenever the server becomes reachable.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = e.bus.Handle(ctx, bus.ConnectivityOnline, 4, func(bus.Event) {
		e.RefreshAll(ctx)
	})
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// Tracked lists the conversations refreshed on reconnect.
func (e *Engine) Tracked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.tracked))
	for c := range e.tracked {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Forget stops refreshing a conversation.
func (e *Engine) Forget(conversationID string) {
	e.mu.Lock()
	delete(e.tracked, conversationID)
	e.mu.Unlock()
}

// Pull fetches messages newer than the conversation checkpoint and ingests
// them. It returns how many were ingested.
func (e *Engine) Pull(ctx context.Context, conversationID string) (int, error) {
	e.mu.Lock()
	e.tracked[conversationID] = true
	e.mu.Unlock()

	since, err := e.rec.Checkpoint(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	msgs, err := e.fetcher.FetchMessages(ctx, conversationID, since)
	if err != nil {
		return 0, fmt.Errorf("fetch messages: %w", err)
	}
	if err := e.IngestBatch(ctx, conversationID, msgs); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// RefreshAll pulls every tracked conversation, logging failures.
func (e *Engine) RefreshAll(ctx context.Context) {
	for _, conv := range e.Tracked() {
		n, err := e.Pull(ctx, conv)
		if err != nil {
			e.logger.Warn("conversation refresh failed", zap.String("conversation_id", conv), zap.Error(err))
			continue
		}
		e.logger.Debug("conversation refreshed", zap.String("conversation_id", conv), zap.Int("messages", n))
	}
}

// IngestMessage processes a single message into the cache (idempotent).
func (e *Engine) IngestMessage(ctx context.Context, msg *store.CachedMessage) error {
	if msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("ingest message: id and conversation id required")
	}
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	e.bus.Emit(bus.CacheUpdated, bus.CacheUpdatedEvent{ConversationID: msg.ConversationID, Messages: 1})
	return nil
}

// IngestBatch stores a fetched page and advances the checkpoint to the
// newest message timestamp. Messages for other conversations are rejected.
func (e *Engine) IngestBatch(ctx context.Context, conversationID string, msgs []store.CachedMessage) error {
	var newest int64
	for i := range msgs {
		m := &msgs[i]
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if m.ConversationID != conversationID {
			return fmt.Errorf("ingest batch: message %s belongs to %s", m.ID, m.ConversationID)
		}
		if err := e.store.SaveMessage(ctx, m); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
		newest = max(newest, m.Timestamp)
	}
	if newest > 0 {
		if err := e.rec.Advance(ctx, conversationID, newest); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	e.bus.Emit(bus.CacheUpdated, bus.CacheUpdatedEvent{ConversationID: conversationID, Messages: len(msgs)})
	return nil
}
