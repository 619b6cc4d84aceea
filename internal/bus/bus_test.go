package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("outbox.", 10)
	defer unsub()

	b.Publish(Event{Kind: OutboxQueued, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != OutboxQueued {
			t.Errorf("got kind %q, want %s", evt.Kind, OutboxQueued)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("connectivity.", 10)
	defer unsub()

	b.Emit(OutboxSent, nil)
	b.Emit(ConnectivityOnline, nil)

	select {
	case evt := <-ch:
		if evt.Kind != ConnectivityOnline {
			t.Errorf("got kind %q, want %s", evt.Kind, ConnectivityOnline)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the outbox event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("outbox.", 10)
	unsub()

	b.Emit(OutboxQueued, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// Dropped, the buffer is full.
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", b.Dropped())
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: "x"})
	if evt := <-ch; evt.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestHandleStopsOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := b.Handle(ctx, "connectivity.", 4, func(evt Event) { got <- evt.Kind })

	b.Emit(ConnectivityOnline, nil)
	select {
	case kind := <-got:
		if kind != ConnectivityOnline {
			t.Errorf("got %q", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler goroutine did not exit")
	}
}
