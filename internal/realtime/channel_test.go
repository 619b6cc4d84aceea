package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/notify"
)

// scriptStream replays events, then fails with end (or blocks until closed
// when end is nil).
type scriptStream struct {
	events []Event
	end    error
	closed chan struct{}
	once   sync.Once
}

func newScript(end error, events ...Event) *scriptStream {
	return &scriptStream{events: events, end: end, closed: make(chan struct{})}
}

func (s *scriptStream) Next() (Event, error) {
	if len(s.events) > 0 {
		e := s.events[0]
		s.events = s.events[1:]
		return e, nil
	}
	if s.end != nil {
		return Event{}, s.end
	}
	<-s.closed
	return Event{}, io.EOF
}

func (s *scriptStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []Stream
	errs    []error
	dials   []time.Time
	lastIDs []string
	opened  []*scriptStream
}

func (f *fakeDialer) Name() string { return "fake" }

func (f *fakeDialer) Dial(_ context.Context, _ Credentials, lastID string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, time.Now())
	f.lastIDs = append(f.lastIDs, lastID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.streams) == 0 {
		s := newScript(nil)
		f.opened = append(f.opened, s)
		return s, nil
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dials)
}

type recordingSink struct {
	mu   sync.Mutex
	recs []notify.Record
}

func (r *recordingSink) Push(rec notify.Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return true
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func fastConfig() Config {
	return Config{ReconnectDelay: 20 * time.Millisecond}
}

func TestChannelDeliversNotificationsOnce(t *testing.T) {
	d := &fakeDialer{streams: []Stream{newScript(nil,
		Event{Name: "ping", Data: []byte(`{}`)},
		Event{Name: "notification", Data: []byte(`{"id":"n1","type":"like","content":"x"}`)},
		Event{Name: "notification", Data: []byte(`garbage`)},
		Event{Name: "notification", Data: []byte(`{"id":"n2"}`)},
	)}}
	sink := &recordingSink{}
	c := New(d, sink, bus.New(), fastConfig(), zap.NewNop())

	c.Start(Credentials{Token: "t"})
	defer c.Stop()

	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, sink.len())
	assert.True(t, c.Connected())
}

func TestChannelStartIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	c := New(d, &recordingSink{}, bus.New(), fastConfig(), zap.NewNop())

	c.Start(Credentials{Token: "t"})
	c.Start(Credentials{Token: "t"})
	defer c.Stop()

	require.Eventually(t, func() bool { return d.dialCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
}

func TestChannelConcurrentStartLeavesOneStream(t *testing.T) {
	d := &fakeDialer{}
	c := New(d, &recordingSink{}, bus.New(), fastConfig(), zap.NewNop())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Start(Credentials{Token: string(rune('a' + i))})
		}()
	}
	wg.Wait()
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	c.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.opened)
	for i, s := range d.opened {
		select {
		case <-s.closed:
		default:
			t.Errorf("stream %d left open after Stop", i)
		}
	}
}

func TestChannelReconnectsAfterDelay(t *testing.T) {
	d := &fakeDialer{
		errs:    []error{errors.New("refused"), nil},
		streams: []Stream{newScript(nil)},
	}
	b := bus.New()
	connected, unsub := b.Subscribe(bus.RealtimeConnected, 4)
	defer unsub()
	c := New(d, &recordingSink{}, b, fastConfig(), zap.NewNop())

	c.Start(Credentials{Token: "t"})
	defer c.Stop()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("never connected")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.dials, 2)
	assert.GreaterOrEqual(t, d.dials[1].Sub(d.dials[0]), 20*time.Millisecond)
}

func TestChannelResumesWithLastEventID(t *testing.T) {
	d := &fakeDialer{streams: []Stream{
		newScript(io.EOF, Event{ID: "5", Name: "notification", Data: []byte(`{"id":"n1"}`)}),
		newScript(nil),
	}}
	c := New(d, &recordingSink{}, bus.New(), fastConfig(), zap.NewNop())
	c.Start(Credentials{Token: "t"})
	defer c.Stop()

	require.Eventually(t, func() bool { return d.dialCount() == 2 }, time.Second, 5*time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []string{"", "5"}, d.lastIDs)
}

func TestChannelStopsOnUnauthorized(t *testing.T) {
	d := &fakeDialer{errs: []error{ErrUnauthorized}}
	b := bus.New()
	ch, unsub := b.Subscribe(bus.RealtimeUnauthorized, 1)
	defer unsub()
	c := New(d, &recordingSink{}, b, fastConfig(), zap.NewNop())

	c.Start(Credentials{Token: "expired"})
	defer c.Stop()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no unauthorized event")
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
}

func TestChannelStopClosesStream(t *testing.T) {
	s := newScript(nil)
	d := &fakeDialer{streams: []Stream{s}}
	c := New(d, &recordingSink{}, bus.New(), fastConfig(), zap.NewNop())
	c.Start(Credentials{Token: "t"})
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
	select {
	case <-s.closed:
	default:
		t.Error("stream not closed")
	}
	assert.False(t, c.Running())
}

func TestBackoffPolicy(t *testing.T) {
	fixed := New(&fakeDialer{}, nil, bus.New(), Config{}, zap.NewNop()).newBackoff()
	for range 3 {
		assert.Equal(t, 5*time.Second, fixed.Duration())
	}

	exp := New(&fakeDialer{}, nil, bus.New(), Config{ReconnectDelay: time.Second, ReconnectMax: 4 * time.Second, Factor: 2}, zap.NewNop()).newBackoff()
	assert.Equal(t, time.Second, exp.Duration())
	assert.Equal(t, 2*time.Second, exp.Duration())
	assert.Equal(t, 4*time.Second, exp.Duration())
	assert.Equal(t, 4*time.Second, exp.Duration())
	exp.Reset()
	assert.Equal(t, time.Second, exp.Duration())
}
