package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer connects by upgrading the stream path to a WebSocket. Frames are
// JSON objects {"event": "...", "data": {...}}.
type WSDialer struct {
	Endpoint Endpoint
	Dialer   *websocket.Dialer
}

func (d *WSDialer) Name() string { return "websocket" }

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + streamPath
}

func (d *WSDialer) Dial(ctx context.Context, creds Credentials, lastEventID string) (Stream, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	h := d.Endpoint.header(creds)
	if lastEventID != "" {
		h.Set("Last-Event-ID", lastEventID)
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL(d.Endpoint.BaseURL), h)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, ErrUnauthorized
			}
			return nil, fmt.Errorf("websocket handshake returned %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &wsStream{conn: conn}, nil
}

type wsFrame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next() (Event, error) {
	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			return Event{}, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var f wsFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			// Unnamed events are skipped by the channel.
			return Event{Data: msg}, nil
		}
		return Event{ID: f.ID, Name: f.Event, Data: f.Data}, nil
	}
}

func (s *wsStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
