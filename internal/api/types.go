package api

import (
	"encoding/json"

	"github.com/matheus3301/outpost/internal/store"
)

// Empty is used by calls without arguments.
type Empty struct{}

// Ack acknowledges a mutation.
type Ack struct {
	Message string `json:"message,omitempty"`
}

// Runtime describes the daemon instance serving a session.
type Runtime struct {
	Session   string
	StoreMode string
}

type StatusResponse struct {
	Session           string   `json:"session"`
	Status            string   `json:"status"`
	Authenticated     bool     `json:"authenticated"`
	Subject           string   `json:"subject,omitempty"`
	ExpiresAtUnixMs   int64    `json:"expiresAtUnixMs,omitempty"`
	Online            bool     `json:"online"`
	ForcedOffline     bool     `json:"forcedOffline"`
	RealtimeConnected bool     `json:"realtimeConnected"`
	StoreMode         string   `json:"storeMode"`
	Pending           int      `json:"pending"`
	Syncing           bool     `json:"syncing"`
	Unread            int      `json:"unread"`
	UptimeMs          int64    `json:"uptimeMs"`
	Errors            []string `json:"errors,omitempty"`
	EventsDropped     uint64   `json:"eventsDropped"`
}

type LoginRequest struct {
	Token string `json:"token"`
}

type LoginResponse struct {
	Subject         string `json:"subject,omitempty"`
	ExpiresAtUnixMs int64  `json:"expiresAtUnixMs,omitempty"`
}

type SetOfflineRequest struct {
	Offline bool `json:"offline"`
}

type WatchRequest struct {
	// Namespace filters events by kind prefix; empty streams everything.
	Namespace string `json:"namespace,omitempty"`
}

// EventEnvelope carries one bus event to a watching client.
type EventEnvelope struct {
	EventID          string          `json:"eventId"`
	Session          string          `json:"session"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type SendRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type SendResponse struct {
	Entry store.PendingEntry `json:"entry"`
}

type ConversationRequest struct {
	// ConversationID scopes the call; empty means every conversation where
	// the call allows it.
	ConversationID string `json:"conversationId,omitempty"`
}

type ListPendingResponse struct {
	Pending []store.PendingEntry `json:"pending"`
	Failed  []store.PendingEntry `json:"failed"`
}

type SyncResponse struct {
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Collapsed bool `json:"collapsed"`
	Pending   int  `json:"pending"`
}

type DiscardRequest struct {
	ID int64 `json:"id"`
}

type DraftRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type DraftResponse struct {
	Draft *store.Draft `json:"draft,omitempty"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit,omitempty"`
	// Refresh pulls newer messages from the server first when online.
	Refresh bool `json:"refresh,omitempty"`
}

type ListMessagesResponse struct {
	Messages []store.CachedMessage `json:"messages"`
	Pulled   int                   `json:"pulled"`
	Warning  string                `json:"warning,omitempty"`
}

type ClearCacheRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	// All wipes every partition including the outbox.
	All bool `json:"all,omitempty"`
}

type MarkReadRequest struct {
	ID string `json:"id"`
}

type MarkReadResponse struct {
	Unread int `json:"unread"`
}
