// Package realtime holds the server-push notification channel and its SSE and
// WebSocket transports.
package realtime

import (
	"context"
	"errors"
	"net/http"
)

// ErrUnauthorized is returned by a Dialer when the server rejects the session.
// The channel stops reconnecting on it.
var ErrUnauthorized = errors.New("realtime: unauthorized")

// Event is one server-sent event.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// Credentials identify the session on the stream.
type Credentials struct {
	Token string
}

// Stream yields events until it fails or is closed.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Dialer opens a Stream. lastEventID is empty on the first connection.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials, lastEventID string) (Stream, error)
	Name() string
}

// Endpoint is where the stream lives.
type Endpoint struct {
	BaseURL    string
	CookieName string
}

func (e Endpoint) header(creds Credentials) http.Header {
	h := http.Header{}
	if creds.Token != "" {
		name := e.CookieName
		if name == "" {
			name = "session"
		}
		h.Set("Cookie", (&http.Cookie{Name: name, Value: creds.Token}).String())
	}
	return h
}

const streamPath = "/api/notifications/stream"
