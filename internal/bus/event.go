package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, e.g. "outbox." or "connectivity.".
const (
	ConnectivityOnline  = "connectivity.online"
	ConnectivityOffline = "connectivity.offline"

	OutboxQueued = "outbox.queued"
	OutboxSent   = "outbox.sent"
	OutboxFailed = "outbox.failed"
	OutboxSynced = "outbox.synced"

	CacheUpdated = "cache.updated"

	NotificationReceived = "notification.received"
	NotificationUpdated  = "notification.updated"

	RealtimeConnected    = "realtime.connected"
	RealtimeDisconnected = "realtime.disconnected"
	RealtimeUnauthorized = "realtime.unauthorized"

	SessionAuthenticated = "session.authenticated"
	SessionLoggedOut     = "session.logged_out"
	SessionStatusChanged = "session.status_changed"
)

// OutboxEntryEvent is the payload of outbox.queued, outbox.sent and outbox.failed.
type OutboxEntryEvent struct {
	EntryID        int64
	ClientMsgID    string
	ConversationID string
	MessageID      string
	Error          string
}

// OutboxSyncedEvent is the payload of outbox.synced.
type OutboxSyncedEvent struct {
	Sent    int
	Failed  int
	Skipped int
	Pending int
}

// CacheUpdatedEvent is the payload of cache.updated.
type CacheUpdatedEvent struct {
	ConversationID string
	Messages       int
}
