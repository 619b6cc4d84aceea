package store

import "testing"

func TestIDGeneratorMonotonic(t *testing.T) {
	g := MustIDGenerator(7)
	prev := int64(0)
	for i := 0; i < 100; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatal(err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than %d", id, prev)
		}
		prev = id
	}
}

func TestPrepareFillsOwnedFields(t *testing.T) {
	g := MustIDGenerator(1)
	in := &PendingEntry{ConversationID: "c", Content: "x", Status: StatusFailed, Attempts: 3, LastError: "old"}
	e, err := Prepare(g, in, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusPending || e.Attempts != 0 || e.LastError != "" {
		t.Errorf("got %+v, want reset pending entry", e)
	}
	if e.ClientMsgID == "" {
		t.Error("client message id not assigned")
	}
	if e.CreatedAt != 1000 {
		t.Errorf("created_at = %d, want 1000", e.CreatedAt)
	}
	if in.ID != 0 {
		t.Error("input entry must not be mutated")
	}
}
