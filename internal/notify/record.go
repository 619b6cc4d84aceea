package notify

import "time"

// Actor is the user who triggered a notification.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

// Record is one notification as delivered by the server.
type Record struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Actor     Actor     `json:"actor"`
	Content   string    `json:"content"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// Page is the server's notification list response.
type Page struct {
	Notifications []Record `json:"notifications"`
	UnreadCount   int      `json:"unreadCount"`
}

// SyncState tells surfaces whether the local read state matches the server.
type SyncState string

const (
	Reconciled SyncState = "reconciled"
	Optimistic SyncState = "optimistic-pending-confirmation"
)

// Snapshot is a point-in-time copy of the store for surfaces.
type Snapshot struct {
	Notifications []Record  `json:"notifications"`
	Unread        int       `json:"unread"`
	State         SyncState `json:"state"`
	LastError     string    `json:"lastError,omitempty"`
}
