package store

// CachedMessage is a confirmed message held in the local message cache.
type CachedMessage struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Content        string            `json:"content"`
	SenderID       string            `json:"senderId"`
	Timestamp      int64             `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SavedAt        int64             `json:"savedAt"`
	SyncedAt       int64             `json:"syncedAt,omitempty"`
}

// EntryStatus is the persisted status of an outbox entry.
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusFailed  EntryStatus = "failed"
)

// PendingEntry is a message that has not yet been confirmed by the server.
type PendingEntry struct {
	ID             int64       `json:"id"`
	ClientMsgID    string      `json:"clientMessageId"`
	ConversationID string      `json:"conversationId"`
	Content        string      `json:"content"`
	Status         EntryStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"lastError,omitempty"`
	CreatedAt      int64       `json:"createdAt"`
	UpdatedAt      int64       `json:"updatedAt"`
}

// Draft is the unsent composer text of a conversation.
type Draft struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	SavedAt        int64  `json:"savedAt"`
}
