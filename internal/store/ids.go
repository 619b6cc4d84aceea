package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// IDGenerator hands out time-ordered 63-bit outbox entry ids.
type IDGenerator struct {
	sf *sonyflake.Sonyflake
}

var idEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewIDGenerator creates a generator for the given machine id. A fixed id is
// used instead of the host's private IP so the daemon works offline.
func NewIDGenerator(machineID uint16) (*IDGenerator, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: idEpoch,
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if sf == nil {
		return nil, errors.New("sonyflake init failed")
	}
	return &IDGenerator{sf: sf}, nil
}

// MustIDGenerator is NewIDGenerator for tests and defaults.
func MustIDGenerator(machineID uint16) *IDGenerator {
	g, err := NewIDGenerator(machineID)
	if err != nil {
		panic(err)
	}
	return g
}

// Next returns a new id.
func (g *IDGenerator) Next() (int64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return int64(id), nil
}

// NewClientMsgID returns a fresh idempotency key for the server.
func NewClientMsgID() string {
	return uuid.NewString()
}

// Prepare fills the fields AddToPendingQueue owns. Engines call it before
// persisting a new entry.
func Prepare(ids *IDGenerator, entry *PendingEntry, now int64) (*PendingEntry, error) {
	id, err := ids.Next()
	if err != nil {
		return nil, err
	}
	e := *entry
	e.ID = id
	if e.ClientMsgID == "" {
		e.ClientMsgID = NewClientMsgID()
	}
	e.Status = StatusPending
	e.Attempts = 0
	e.LastError = ""
	e.CreatedAt = now
	e.UpdatedAt = now
	return &e, nil
}
