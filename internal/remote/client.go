// Package remote is the HTTP client for the web application's messaging and
// notification endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/store"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// StatusCode lets callers classify the error without importing this package.
func (e *StatusError) StatusCode() int { return e.Code }

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// TokenSource yields the current session cookie value.
type TokenSource interface {
	Token() string
}

// Config holds the server settings.
type Config struct {
	BaseURL    string
	CookieName string
	Timeout    time.Duration
}

// Client talks to the web application on behalf of the session.
type Client struct {
	cfg    Config
	tokens TokenSource
	http   *http.Client
	logger *zap.Logger
}

// New creates a client. tokens may be nil for unauthenticated probes.
func New(cfg Config, tokens TokenSource, logger *zap.Logger) *Client {
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// BaseURL returns the configured server root.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// CookieName returns the session cookie name.
func (c *Client) CookieName() string { return c.cfg.CookieName }

// SessionCookie builds the cookie sent on every call. It is nil when there is
// no session.
func (c *Client) SessionCookie() *http.Cookie {
	if c.tokens == nil {
		return nil
	}
	tok := c.tokens.Token()
	if tok == "" {
		return nil
	}
	return &http.Cookie{Name: c.cfg.CookieName, Value: tok}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, header http.Header) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if ck := c.SessionCookie(); ck != nil {
		req.AddCookie(ck)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("remote call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(preview))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type sendBody struct {
	ConversationID  string `json:"conversationId"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId"`
}

// SendMessage posts a message. The client message id doubles as the
// Idempotency-Key so a retried send is not duplicated.
func (c *Client) SendMessage(ctx context.Context, req outbox.SendRequest) (*store.CachedMessage, error) {
	var msg store.CachedMessage
	h := http.Header{}
	h.Set("Idempotency-Key", req.ClientMsgID)
	err := c.do(ctx, http.MethodPost, "/api/messages", sendBody{
		ConversationID:  req.ConversationID,
		Content:         req.Content,
		ClientMessageID: req.ClientMsgID,
	}, &msg, h)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("server confirmed message without id")
	}
	return &msg, nil
}

// FetchMessages pulls a conversation's messages newer than since (unix ms).
func (c *Client) FetchMessages(ctx context.Context, conversationID string, since int64) ([]store.CachedMessage, error) {
	path := "/api/messages/" + url.PathEscape(conversationID)
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var out struct {
		Messages []store.CachedMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) FetchNotifications(ctx context.Context) (*notify.Page, error) {
	var page notify.Page
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &page, nil); err != nil {
		return nil, err
	}
	return &page, nil
}

type unreadBody struct {
	UnreadCount int `json:"unreadCount"`
}

func (c *Client) MarkRead(ctx context.Context, id string) (int, error) {
	var out unreadBody
	if err := c.do(ctx, http.MethodPatch, "/api/notifications/"+url.PathEscape(id), struct{}{}, &out, nil); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// MarkAllRead ignores the response body; servers may answer 204.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/api/notifications", map[string]bool{"all": true}, nil, nil)
}

// Probe reports whether the server answers. Client errors still prove
// reachability; only transport failures and 5xx count as down.
func (c *Client) Probe(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return nil
	}
	return err
}

var (
	_ outbox.Transport = (*Client)(nil)
	_ notify.API       = (*Client)(nil)
)
