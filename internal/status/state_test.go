package status

import (
	"testing"

	"github.com/matheus3301/outpost/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, AuthRequired},
		{Booting, Connecting},
		{Booting, Error},
		{AuthRequired, Connecting},
		{Connecting, Online},
		{Connecting, Offline},
		{Online, Offline},
		{Offline, Online},
		{Online, AuthRequired},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Online); err == nil {
		t.Error("Transition(BOOTING -> ONLINE) should fail")
	}
	if m.Current() != Booting {
		t.Errorf("state = %s, want BOOTING (should not have changed)", m.Current())
	}
}

func TestEnsureIsNoopOnSameState(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Online)
	for len(ch) > 0 {
		<-ch
	}
	if err := m.Ensure(Online); err != nil {
		t.Fatalf("Ensure(ONLINE) from ONLINE: %v", err)
	}
	if len(ch) != 0 {
		t.Errorf("Ensure on same state published %d events, want 0", len(ch))
	}
	if err := m.Ensure(Offline); err != nil {
		t.Fatalf("Ensure(OFFLINE): %v", err)
	}
	if m.Current() != Offline {
		t.Errorf("state = %s, want OFFLINE", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.SessionStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.SessionStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != AuthRequired {
		t.Errorf("change = %v -> %v, want BOOTING -> AUTH_REQUIRED", change.From, change.To)
	}
}

// TestAuthRequiredCannotGoOnline verifies that a login must pass through
// CONNECTING before the daemon reports ONLINE.
func TestAuthRequiredCannotGoOnline(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(AuthRequired)

	if err := m.Transition(Online); err == nil {
		t.Fatal("Transition(AUTH_REQUIRED -> ONLINE) should fail; must go through CONNECTING first")
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("AUTH_REQUIRED -> CONNECTING: %v", err)
	}
	if err := m.Transition(Online); err != nil {
		t.Fatalf("CONNECTING -> ONLINE: %v", err)
	}
}

// TestConnectivityFlapping simulates the network dropping and returning:
// ONLINE → OFFLINE → ONLINE → OFFLINE
func TestConnectivityFlapping(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Online)

	for _, s := range []State{Offline, Online, Offline} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Offline {
		t.Errorf("final state = %s, want OFFLINE", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		AuthRequired: {AuthRequired},
		Connecting:   {Connecting},
		Online:       {Connecting, Online},
		Offline:      {Connecting, Offline},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
