package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/matheus3301/outpost/internal/notify"
)

// Client talks to a session daemon over its unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon socket. The connection is lazy so a missing
// daemon surfaces on the first call as codes.Unavailable.
func Dial(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, service, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+service+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func call[T any](ctx context.Context, c *Client, service, method string, in any) (*T, error) {
	out := new(T)
	if err := c.invoke(ctx, service, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClientStream receives typed messages from a server-streaming call.
type ClientStream[T any] struct {
	cs grpc.ClientStream
}

// Recv blocks for the next message.
func (s *ClientStream[T]) Recv() (*T, error) {
	m := new(T)
	if err := s.cs.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func openStream[T any](ctx context.Context, c *Client, desc *grpc.ServiceDesc, in any) (*ClientStream[T], error) {
	sd := &desc.Streams[0]
	cs, err := c.conn.NewStream(ctx, sd, "/"+desc.ServiceName+"/"+sd.StreamName, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(in); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &ClientStream[T]{cs: cs}, nil
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return call[StatusResponse](ctx, c, SessionServiceName, "GetStatus", &Empty{})
}

func (c *Client) Login(ctx context.Context, token string) (*LoginResponse, error) {
	return call[LoginResponse](ctx, c, SessionServiceName, "Login", &LoginRequest{Token: token})
}

func (c *Client) Logout(ctx context.Context) (*Ack, error) {
	return call[Ack](ctx, c, SessionServiceName, "Logout", &Empty{})
}

func (c *Client) SetOffline(ctx context.Context, offline bool) (*StatusResponse, error) {
	return call[StatusResponse](ctx, c, SessionServiceName, "SetOffline", &SetOfflineRequest{Offline: offline})
}

// WatchEvents streams bus events whose kind starts with namespace.
func (c *Client) WatchEvents(ctx context.Context, namespace string) (*ClientStream[EventEnvelope], error) {
	return openStream[EventEnvelope](ctx, c, &SessionServiceDesc, &WatchRequest{Namespace: namespace})
}

func (c *Client) Send(ctx context.Context, conversationID, content string) (*SendResponse, error) {
	return call[SendResponse](ctx, c, OutboxServiceName, "Send", &SendRequest{ConversationID: conversationID, Content: content})
}

func (c *Client) ListPending(ctx context.Context, conversationID string) (*ListPendingResponse, error) {
	return call[ListPendingResponse](ctx, c, OutboxServiceName, "ListPending", &ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Sync(ctx context.Context) (*SyncResponse, error) {
	return call[SyncResponse](ctx, c, OutboxServiceName, "Sync", &Empty{})
}

func (c *Client) Retry(ctx context.Context, conversationID string) (*SyncResponse, error) {
	return call[SyncResponse](ctx, c, OutboxServiceName, "Retry", &ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Discard(ctx context.Context, id int64) (*Ack, error) {
	return call[Ack](ctx, c, OutboxServiceName, "Discard", &DiscardRequest{ID: id})
}

func (c *Client) SaveDraft(ctx context.Context, conversationID, content string) (*Ack, error) {
	return call[Ack](ctx, c, OutboxServiceName, "SaveDraft", &DraftRequest{ConversationID: conversationID, Content: content})
}

func (c *Client) GetDraft(ctx context.Context, conversationID string) (*DraftResponse, error) {
	return call[DraftResponse](ctx, c, OutboxServiceName, "GetDraft", &ConversationRequest{ConversationID: conversationID})
}

func (c *Client) DiscardDraft(ctx context.Context, conversationID string) (*Ack, error) {
	return call[Ack](ctx, c, OutboxServiceName, "DiscardDraft", &ConversationRequest{ConversationID: conversationID})
}

func (c *Client) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	return call[ListMessagesResponse](ctx, c, OutboxServiceName, "ListMessages", req)
}

func (c *Client) ClearCache(ctx context.Context, req *ClearCacheRequest) (*Ack, error) {
	return call[Ack](ctx, c, OutboxServiceName, "ClearCache", req)
}

func (c *Client) Notifications(ctx context.Context) (*notify.Snapshot, error) {
	return call[notify.Snapshot](ctx, c, NotificationServiceName, "List", &Empty{})
}

func (c *Client) RefreshNotifications(ctx context.Context) (*notify.Snapshot, error) {
	return call[notify.Snapshot](ctx, c, NotificationServiceName, "Refresh", &Empty{})
}

func (c *Client) MarkRead(ctx context.Context, id string) (*MarkReadResponse, error) {
	return call[MarkReadResponse](ctx, c, NotificationServiceName, "MarkRead", &MarkReadRequest{ID: id})
}

func (c *Client) MarkAllRead(ctx context.Context) (*MarkReadResponse, error) {
	return call[MarkReadResponse](ctx, c, NotificationServiceName, "MarkAllRead", &Empty{})
}

// WatchNotifications streams a snapshot now and after every change.
func (c *Client) WatchNotifications(ctx context.Context) (*ClientStream[notify.Snapshot], error) {
	return openStream[notify.Snapshot](ctx, c, &NotificationServiceDesc, &Empty{})
}
