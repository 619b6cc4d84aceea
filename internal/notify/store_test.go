package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type fakeAPI struct {
	mu          sync.Mutex
	fetchErrs   []error // consumed in order, then page is returned
	page        Page
	fetchCalls  int
	markErrs    []error
	markCalls   int
	unreadAfter int
	markAllErr  error
}

func (f *fakeAPI) FetchNotifications(context.Context) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return nil, err
	}
	p := f.page
	return &p, nil
}

func (f *fakeAPI) MarkRead(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if len(f.markErrs) > 0 {
		err := f.markErrs[0]
		f.markErrs = f.markErrs[1:]
		return 0, err
	}
	return f.unreadAfter, nil
}

func (f *fakeAPI) MarkAllRead(context.Context) error {
	return f.markAllErr
}

func rec(id string, read bool) Record {
	return Record{ID: id, Type: "like", Actor: Actor{ID: "u1", Username: "ana"}, Content: "liked your post", CreatedAt: time.Unix(1700000000, 0), Read: read}
}

func newStore(api API) *Store {
	return New(api, bus.New(), Config{RetryBase: time.Millisecond}, zap.NewNop())
}

func TestFetchReplacesList(t *testing.T) {
	api := &fakeAPI{page: Page{Notifications: []Record{rec("n1", false), rec("n2", true)}, UnreadCount: 1}}
	s := newStore(api)
	s.Push(rec("old", false))

	require.NoError(t, s.Fetch(context.Background()))
	snap := s.Snapshot()
	assert.Len(t, snap.Notifications, 2)
	assert.Equal(t, 1, snap.Unread)
	assert.Equal(t, Reconciled, snap.State)
	_, ok := s.Get("old")
	assert.False(t, ok)
}

func TestFetchRetriesUnavailable(t *testing.T) {
	api := &fakeAPI{
		fetchErrs: []error{statusErr(http.StatusServiceUnavailable), statusErr(http.StatusServiceUnavailable)},
		page:      Page{Notifications: []Record{rec("n1", false)}, UnreadCount: 1},
	}
	s := newStore(api)

	require.NoError(t, s.Fetch(context.Background()))
	assert.Equal(t, 3, api.fetchCalls)
	assert.Equal(t, 1, s.Unread())
}

func TestFetchGivesUpAfterThreeAttempts(t *testing.T) {
	unavailable := statusErr(http.StatusServiceUnavailable)
	api := &fakeAPI{fetchErrs: []error{unavailable, unavailable, unavailable, unavailable}}
	s := newStore(api)

	err := s.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, api.fetchCalls)
	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.NotEmpty(t, snap.LastError)
}

func TestFetchUnauthorizedIsEmptyWithoutError(t *testing.T) {
	api := &fakeAPI{fetchErrs: []error{statusErr(http.StatusUnauthorized)}}
	s := newStore(api)

	require.NoError(t, s.Fetch(context.Background()))
	assert.Equal(t, 1, api.fetchCalls)
	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.Empty(t, snap.LastError)
}

func TestFetchOtherErrorNoRetry(t *testing.T) {
	api := &fakeAPI{fetchErrs: []error{errors.New("connection refused")}}
	s := newStore(api)

	require.Error(t, s.Fetch(context.Background()))
	assert.Equal(t, 1, api.fetchCalls)
	assert.Equal(t, "connection refused", s.Snapshot().LastError)
}

func TestPushPrependsAndCounts(t *testing.T) {
	s := newStore(&fakeAPI{})
	ch, unsub := s.bus.Subscribe(bus.NotificationReceived, 4)
	defer unsub()

	assert.True(t, s.Push(rec("n1", false)))
	assert.True(t, s.Push(rec("n2", true)))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "n2", snap.Notifications[0].ID)
	assert.Equal(t, 1, snap.Unread)
	assert.Len(t, ch, 2)
}

func TestPushIgnoresDuplicateID(t *testing.T) {
	s := newStore(&fakeAPI{})

	assert.True(t, s.Push(rec("n1", false)))
	assert.False(t, s.Push(rec("n1", false)))

	snap := s.Snapshot()
	assert.Len(t, snap.Notifications, 1)
	assert.Equal(t, 1, snap.Unread)
}

func TestMarkAsReadReconciles(t *testing.T) {
	api := &fakeAPI{unreadAfter: 4}
	s := newStore(api)
	s.Push(rec("n1", false))

	require.NoError(t, s.MarkAsRead(context.Background(), "n1"))
	r, _ := s.Get("n1")
	assert.True(t, r.Read)
	snap := s.Snapshot()
	assert.Equal(t, 4, snap.Unread, "server count wins")
	assert.Equal(t, Reconciled, snap.State)
}

func TestMarkAsReadRetriesOnceOn503(t *testing.T) {
	api := &fakeAPI{markErrs: []error{statusErr(http.StatusServiceUnavailable)}}
	s := newStore(api)
	s.Push(rec("n1", false))

	require.NoError(t, s.MarkAsRead(context.Background(), "n1"))
	assert.Equal(t, 2, api.markCalls)
}

func TestMarkAsReadFailureKeepsFlip(t *testing.T) {
	unavailable := statusErr(http.StatusServiceUnavailable)
	api := &fakeAPI{markErrs: []error{unavailable, unavailable}}
	s := newStore(api)
	s.Push(rec("n1", false))

	require.Error(t, s.MarkAsRead(context.Background(), "n1"))
	r, _ := s.Get("n1")
	assert.True(t, r.Read)
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Unread)
	assert.Equal(t, Optimistic, snap.State)
	assert.Equal(t, 2, api.markCalls)
}

func TestMarkAsReadUnknown(t *testing.T) {
	api := &fakeAPI{}
	s := newStore(api)
	assert.ErrorIs(t, s.MarkAsRead(context.Background(), "nope"), ErrUnknown)
	assert.Zero(t, api.markCalls)
}

func TestMarkAllAsRead(t *testing.T) {
	s := newStore(&fakeAPI{})
	for _, id := range []string{"a", "b", "c"} {
		s.Push(rec(id, false))
	}

	require.NoError(t, s.MarkAllAsRead(context.Background()))
	snap := s.Snapshot()
	assert.Zero(t, snap.Unread)
	for _, r := range snap.Notifications {
		assert.True(t, r.Read, r.ID)
	}
	assert.Equal(t, Reconciled, snap.State)
}

func TestMarkAllAsReadFailureNoRollback(t *testing.T) {
	s := newStore(&fakeAPI{markAllErr: errors.New("boom")})
	s.Push(rec("a", false))

	require.Error(t, s.MarkAllAsRead(context.Background()))
	snap := s.Snapshot()
	assert.Zero(t, snap.Unread)
	assert.True(t, snap.Notifications[0].Read)
	assert.Equal(t, Optimistic, snap.State)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newStore(&fakeAPI{})
	s.Push(rec("a", false))

	snap := s.Snapshot()
	snap.Notifications[0].Read = true
	r, _ := s.Get("a")
	assert.False(t, r.Read)
}
