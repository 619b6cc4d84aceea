// Package outbox queues outgoing messages locally and drains them to the
// server whenever the connection allows.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/metrics"
	"github.com/matheus3301/outpost/internal/store"
)

var (
	// ErrOffline is returned when a sync pass is requested while offline.
	ErrOffline = errors.New("outbox: offline")
	// ErrEmptyContent rejects blank messages.
	ErrEmptyContent = errors.New("outbox: empty content")
	// ErrNoConversation rejects messages without a target.
	ErrNoConversation = errors.New("outbox: conversation id required")
)

// SendRequest is one delivery attempt of an outbox entry.
type SendRequest struct {
	ConversationID string
	Content        string
	ClientMsgID    string
}

// Transport delivers a message and returns the server-confirmed copy.
type Transport interface {
	SendMessage(ctx context.Context, req SendRequest) (*store.CachedMessage, error)
}

// Connectivity reports whether the server is currently reachable.
type Connectivity interface {
	Online() bool
}

// Config tunes the Synchronizer.
type Config struct {
	// Debounce delays the sync triggered by a new entry so bursts collapse.
	Debounce time.Duration
	// SendRate limits sends per second. Zero means unlimited.
	SendRate  float64
	SendBurst int
	// MaxErrors bounds the recoverable error list.
	MaxErrors int
}

// Result summarizes a sync run.
type Result struct {
	Sent    int
	Failed  int
	Skipped int
	// Collapsed is set when the request joined a pass already in progress.
	Collapsed bool
}

func (r *Result) add(o Result) {
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// Synchronizer writes messages through to the local store and drains the
// pending queue to the Transport.
type Synchronizer struct {
	store     store.Store
	transport Transport
	conn      Connectivity
	bus       *bus.Bus
	logger    *zap.Logger
	cfg       Config
	limiter   *rate.Limiter

	mu      sync.Mutex
	syncing bool
	again   bool
	pending int
	errs    []string
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	done    <-chan struct{}
	wg      sync.WaitGroup
}

// NewSynchronizer creates a Synchronizer. Call Start to subscribe to
// connectivity events.
func NewSynchronizer(st store.Store, transport Transport, conn Connectivity, b *bus.Bus, cfg Config, logger *zap.Logger) *Synchronizer {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 20
	}
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}
	return &Synchronizer{
		store:     st,
		transport: transport,
		conn:      conn,
		bus:       b,
		logger:    logger,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		ctx:       context.Background(),
	}
}

// Start subscribes to connectivity.online and, when online, drains whatever
// an earlier run left pending.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx, s.cancel = ctx, cancel
	s.mu.Unlock()

	s.refreshPending(ctx)
	s.done = s.bus.Handle(ctx, bus.ConnectivityOnline, 4, func(bus.Event) {
		s.trigger("online")
	})
	if s.conn.Online() && s.PendingCount() > 0 {
		s.goTrigger("startup")
	}
}

// Stop cancels the debounce timer and in-flight passes and waits for them.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		if s.timer.Stop() {
			s.wg.Done()
		}
		s.timer = nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.wg.Wait()
}

// SaveMessageLocally queues a message and returns once it is durable. The
// conversation draft is discarded and, when online, a debounced sync is
// scheduled.
func (s *Synchronizer) SaveMessageLocally(ctx context.Context, conversationID, content string) (*store.PendingEntry, error) {
	if conversationID == "" {
		return nil, ErrNoConversation
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	entry, err := s.store.AddToPendingQueue(ctx, &store.PendingEntry{
		ConversationID: conversationID,
		Content:        content,
	})
	if err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}

	if err := s.store.DeleteDraft(ctx, conversationID); err != nil {
		s.recordError(fmt.Sprintf("delete draft %s: %v", conversationID, err))
	}

	s.mu.Lock()
	s.pending++
	pending := s.pending
	s.mu.Unlock()
	metrics.RecordQueued()
	metrics.SetPending(pending)

	s.logger.Info("message queued",
		zap.Int64("entry_id", entry.ID),
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("conversation_id", conversationID),
	)
	s.bus.Emit(bus.OutboxQueued, bus.OutboxEntryEvent{
		EntryID:        entry.ID,
		ClientMsgID:    entry.ClientMsgID,
		ConversationID: conversationID,
	})

	if s.conn.Online() {
		s.schedule()
	}
	return entry, nil
}

// schedule arms the debounce timer unless one is already armed.
func (s *Synchronizer) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.cfg.Debounce, func() {
		defer s.wg.Done()
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.trigger("debounce")
	})
}

func (s *Synchronizer) goTrigger(reason string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.trigger(reason)
	}()
}

func (s *Synchronizer) trigger(reason string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	res, err := s.SyncPendingMessages(ctx)
	switch {
	case errors.Is(err, ErrOffline), errors.Is(err, context.Canceled):
		s.logger.Debug("sync skipped", zap.String("reason", reason), zap.Error(err))
	case err != nil:
		s.logger.Warn("sync failed", zap.String("reason", reason), zap.Error(err))
	default:
		s.logger.Debug("sync done",
			zap.String("reason", reason),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Bool("collapsed", res.Collapsed),
		)
	}
}

// SyncPendingMessages drains the pending queue oldest first. A request made
// while a pass is running does not start a second pass; it makes the
// running pass go around exactly once more.
func (s *Synchronizer) SyncPendingMessages(ctx context.Context) (Result, error) {
	if !s.conn.Online() {
		return Result{}, ErrOffline
	}

	s.mu.Lock()
	if s.syncing {
		s.again = true
		s.mu.Unlock()
		return Result{Collapsed: true}, nil
	}
	s.syncing = true
	s.mu.Unlock()

	var total Result
	for {
		res, err := s.pass(ctx)
		total.add(res)

		s.mu.Lock()
		rerun := s.again && err == nil && ctx.Err() == nil && s.conn.Online()
		s.again = false
		if !rerun {
			s.syncing = false
			s.mu.Unlock()
			return total, err
		}
		s.mu.Unlock()
	}
}

func (s *Synchronizer) pass(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { metrics.RecordSyncPass(time.Since(start)) }()

	entries, err := s.store.GetPendingMessages(ctx, "")
	if err != nil {
		s.recordError(fmt.Sprintf("load pending: %v", err))
		return Result{}, fmt.Errorf("load pending: %w", err)
	}

	var res Result
	synced := make(map[string]int64)
	for i := range entries {
		e := &entries[i]
		if ctx.Err() != nil || !s.conn.Online() {
			res.Skipped = len(entries) - i
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			res.Skipped = len(entries) - i
			break
		}

		msg, err := s.transport.SendMessage(ctx, SendRequest{
			ConversationID: e.ConversationID,
			Content:        e.Content,
			ClientMsgID:    e.ClientMsgID,
		})
		if err != nil {
			s.fail(ctx, e, err.Error())
			res.Failed++
			continue
		}
		if s.markSent(ctx, e, msg) {
			res.Sent++
			synced[e.ConversationID] = msg.SyncedAt
		} else {
			res.Failed++
		}
	}

	for conv, ts := range synced {
		if err := s.store.SetLastSync(ctx, conv, ts); err != nil {
			s.recordError(fmt.Sprintf("set last sync %s: %v", conv, err))
		}
	}
	pending := s.refreshPending(ctx)

	s.bus.Emit(bus.OutboxSynced, bus.OutboxSyncedEvent{
		Sent:    res.Sent,
		Failed:  res.Failed,
		Skipped: res.Skipped,
		Pending: pending,
	})
	return res, nil
}

// markSent promotes a delivered entry into the message cache. A storage error
// turns the entry failed so it stays visible; retrying reuses the client
// message id and the server deduplicates it.
func (s *Synchronizer) markSent(ctx context.Context, e *store.PendingEntry, msg *store.CachedMessage) bool {
	if err := Transition(StateOf(e.Status), Sent); err != nil {
		s.recordError(err.Error())
		return false
	}
	confirmed := *msg
	if confirmed.ConversationID == "" {
		confirmed.ConversationID = e.ConversationID
	}
	if confirmed.Content == "" {
		confirmed.Content = e.Content
	}
	confirmed.SyncedAt = time.Now().UnixMilli()
	*msg = confirmed

	err := s.store.MarkAsSent(ctx, e.ID, &confirmed)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Discarded while in flight. The server has it, so keep the copy.
		if err := s.store.SaveMessage(ctx, &confirmed); err != nil {
			s.recordError(fmt.Sprintf("cache message %s: %v", confirmed.ID, err))
		}
	case err != nil:
		s.logger.Error("failed to record sent message", zap.Error(err), zap.Int64("entry_id", e.ID))
		s.fail(ctx, e, fmt.Sprintf("delivered but not recorded: %v", err))
		return false
	}

	metrics.RecordSendResult("sent")
	s.logger.Info("message sent",
		zap.Int64("entry_id", e.ID),
		zap.String("client_msg_id", e.ClientMsgID),
		zap.String("message_id", confirmed.ID),
	)
	s.bus.Emit(bus.OutboxSent, bus.OutboxEntryEvent{
		EntryID:        e.ID,
		ClientMsgID:    e.ClientMsgID,
		ConversationID: e.ConversationID,
		MessageID:      confirmed.ID,
	})
	return true
}

func (s *Synchronizer) fail(ctx context.Context, e *store.PendingEntry, reason string) {
	if err := Transition(StateOf(e.Status), Failed); err != nil {
		s.recordError(err.Error())
		return
	}
	if err := s.store.MarkAsFailed(ctx, e.ID, reason); err != nil {
		s.recordError(fmt.Sprintf("mark failed %d: %v", e.ID, err))
	}
	metrics.RecordSendResult("failed")
	s.logger.Warn("message send failed",
		zap.Int64("entry_id", e.ID),
		zap.String("client_msg_id", e.ClientMsgID),
		zap.String("error", reason),
	)
	s.bus.Emit(bus.OutboxFailed, bus.OutboxEntryEvent{
		EntryID:        e.ID,
		ClientMsgID:    e.ClientMsgID,
		ConversationID: e.ConversationID,
		Error:          reason,
	})
}

// RetryFailedMessages moves failed entries back to pending and syncs. An
// empty conversationID retries every conversation. When offline the entries
// stay pending and ErrOffline is returned.
func (s *Synchronizer) RetryFailedMessages(ctx context.Context, conversationID string) (Result, error) {
	failed, err := s.store.GetFailedMessages(ctx, conversationID)
	if err != nil {
		return Result{}, fmt.Errorf("load failed: %w", err)
	}
	for _, e := range failed {
		if err := Transition(StateOf(e.Status), Pending); err != nil {
			return Result{}, err
		}
		if err := s.store.MarkAsPending(ctx, e.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("requeue %d: %w", e.ID, err)
		}
	}
	s.refreshPending(ctx)
	return s.SyncPendingMessages(ctx)
}

// DiscardEntry deletes an outbox entry the user gave up on.
func (s *Synchronizer) DiscardEntry(ctx context.Context, id int64) error {
	if err := s.store.DeletePending(ctx, id); err != nil {
		return err
	}
	s.refreshPending(ctx)
	return nil
}

// Pending lists pending entries for a conversation ("" = all).
func (s *Synchronizer) Pending(ctx context.Context, conversationID string) ([]store.PendingEntry, error) {
	return s.store.GetPendingMessages(ctx, conversationID)
}

// Failed lists failed entries for a conversation ("" = all).
func (s *Synchronizer) Failed(ctx context.Context, conversationID string) ([]store.PendingEntry, error) {
	return s.store.GetFailedMessages(ctx, conversationID)
}

func (s *Synchronizer) SaveDraft(ctx context.Context, conversationID, content string) error {
	return s.store.SaveDraft(ctx, conversationID, content)
}

func (s *Synchronizer) GetDraft(ctx context.Context, conversationID string) (*store.Draft, error) {
	return s.store.GetDraft(ctx, conversationID)
}

func (s *Synchronizer) DiscardDraft(ctx context.Context, conversationID string) error {
	return s.store.DeleteDraft(ctx, conversationID)
}

// PendingCount returns the cached number of pending entries.
func (s *Synchronizer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// RecountPending re-reads the pending counter after the store was changed
// behind the Synchronizer, e.g. by ClearAll.
func (s *Synchronizer) RecountPending(ctx context.Context) int {
	return s.refreshPending(ctx)
}

// Syncing reports whether a pass is running.
func (s *Synchronizer) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// Errors returns the recoverable errors seen so far, oldest first.
func (s *Synchronizer) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errs...)
}

func (s *Synchronizer) recordError(msg string) {
	s.logger.Warn("outbox error", zap.String("error", msg))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, msg)
	if over := len(s.errs) - s.cfg.MaxErrors; over > 0 {
		s.errs = s.errs[over:]
	}
}

func (s *Synchronizer) refreshPending(ctx context.Context) int {
	entries, err := s.store.GetPendingMessages(ctx, "")
	if err != nil {
		s.recordError(fmt.Sprintf("count pending: %v", err))
		return s.PendingCount()
	}
	s.mu.Lock()
	s.pending = len(entries)
	s.mu.Unlock()
	metrics.SetPending(len(entries))
	return len(entries)
}
