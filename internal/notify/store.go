// Package notify keeps the client's notification list and unread counter in
// step with server pushes and read-state mutations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/metrics"
)

// ErrUnknown is returned by MarkAsRead for ids the store does not hold.
var ErrUnknown = errors.New("notify: unknown notification")

// API is the server side of the notification surface.
type API interface {
	FetchNotifications(ctx context.Context) (*Page, error)
	// MarkRead returns the server's unread count.
	MarkRead(ctx context.Context, id string) (int, error)
	MarkAllRead(ctx context.Context) error
}

// Config tunes fetch retries.
type Config struct {
	// FetchAttempts is the total number of tries on 503.
	FetchAttempts int
	RetryBase     time.Duration
}

// Store holds the notification list. It is safe for concurrent use.
type Store struct {
	api    API
	bus    *bus.Bus
	logger *zap.Logger
	cfg    Config

	mu      sync.RWMutex
	list    []Record
	unread  int
	state   SyncState
	lastErr string
}

// New creates an empty store.
func New(api API, b *bus.Bus, cfg Config, logger *zap.Logger) *Store {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Store{api: api, bus: b, logger: logger, cfg: cfg, state: Reconciled}
}

type statusCoder interface {
	StatusCode() int
}

func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// Fetch replaces the list and unread counter with the server's. A 503 is
// retried with exponential backoff; a 401 yields an empty list without error;
// any other failure yields an empty list and the error.
func (s *Store) Fetch(ctx context.Context) error {
	b := &backoff.Backoff{Min: s.cfg.RetryBase, Max: 8 * s.cfg.RetryBase, Factor: 2}

	var err error
	for attempt := 1; ; attempt++ {
		var page *Page
		page, err = s.api.FetchNotifications(ctx)
		if err == nil {
			s.replace(page.Notifications, page.UnreadCount, "")
			metrics.RecordFetch("ok")
			return nil
		}
		if statusOf(err) == http.StatusUnauthorized {
			s.replace(nil, 0, "")
			metrics.RecordFetch("unauthorized")
			return nil
		}
		if statusOf(err) != http.StatusServiceUnavailable || attempt >= s.cfg.FetchAttempts {
			break
		}
		d := b.Duration()
		s.logger.Debug("notification fetch unavailable, retrying", zap.Int("attempt", attempt), zap.Duration("delay", d))
		select {
		case <-time.After(d):
		case <-ctx.Done():
			err = ctx.Err()
			s.replace(nil, 0, err.Error())
			return err
		}
	}

	s.logger.Warn("notification fetch failed", zap.Error(err))
	metrics.RecordFetch("error")
	s.replace(nil, 0, err.Error())
	return fmt.Errorf("fetch notifications: %w", err)
}

func (s *Store) replace(list []Record, unread int, lastErr string) {
	s.mu.Lock()
	// Server lists may repeat ids across pages; keep the first.
	seen := make(map[string]bool, len(list))
	s.list = make([]Record, 0, len(list))
	for _, r := range list {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		s.list = append(s.list, r)
	}
	s.unread = unread
	s.state = Reconciled
	s.lastErr = lastErr
	s.mu.Unlock()

	metrics.SetUnread(unread)
	s.emit()
}

// Push merges a server-pushed record at the head of the list. A record whose
// id is already held is ignored; Push reports whether it was added.
func (s *Store) Push(r Record) bool {
	s.mu.Lock()
	if slices.ContainsFunc(s.list, func(x Record) bool { return x.ID == r.ID }) {
		s.mu.Unlock()
		return false
	}
	s.list = slices.Insert(s.list, 0, r)
	if !r.Read {
		s.unread++
	}
	unread := s.unread
	s.mu.Unlock()

	metrics.SetUnread(unread)
	s.bus.Emit(bus.NotificationReceived, r)
	return true
}

// MarkAsRead flips the record locally, then confirms with the server. The
// server's unread count wins on success. On failure the flip stays and the
// state remains optimistic until the next Fetch.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.list, func(x Record) bool { return x.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	if !s.list[i].Read {
		s.list[i].Read = true
		s.unread = max(0, s.unread-1)
	}
	s.state = Optimistic
	s.mu.Unlock()
	s.emit()

	unread, err := s.api.MarkRead(ctx, id)
	if statusOf(err) == http.StatusServiceUnavailable {
		unread, err = s.api.MarkRead(ctx, id)
	}
	return s.confirm(unread, err, "mark read "+id)
}

// MarkAllAsRead flips every record and zeroes the counter, then confirms with
// the server. Nothing is rolled back on failure.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	for i := range s.list {
		s.list[i].Read = true
	}
	s.unread = 0
	s.state = Optimistic
	s.mu.Unlock()
	s.emit()

	return s.confirm(0, s.api.MarkAllRead(ctx), "mark all read")
}

func (s *Store) confirm(unread int, err error, op string) error {
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("notification update not confirmed", zap.String("op", op), zap.Error(err))
		s.emit()
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	s.unread = unread
	s.state = Reconciled
	s.lastErr = ""
	s.mu.Unlock()
	metrics.SetUnread(unread)
	s.emit()
	return nil
}

func (s *Store) emit() {
	s.bus.Emit(bus.NotificationUpdated, s.Snapshot())
}

// Snapshot copies the current list, counter and sync state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Notifications: slices.Clone(s.list),
		Unread:        s.unread,
		State:         s.state,
		LastError:     s.lastErr,
	}
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.list, func(x Record) bool { return x.ID == id })
	if i < 0 {
		return Record{}, false
	}
	return s.list[i], true
}

// Unread returns the unread counter.
func (s *Store) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}
