package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/matheus3301/outpost/internal/notify"
)

const (
	SessionServiceName      = "outpost.v1.SessionService"
	OutboxServiceName       = "outpost.v1.OutboxService"
	NotificationServiceName = "outpost.v1.NotificationService"
)

// ServerStream sends typed messages on a server-streaming call.
type ServerStream[T any] struct {
	grpc.ServerStream
}

func (s *ServerStream[T]) Send(m *T) error { return s.SendMsg(m) }

// SessionServer is implemented by *SessionService.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *Empty) (*Ack, error)
	SetOffline(context.Context, *SetOfflineRequest) (*StatusResponse, error)
	WatchEvents(*WatchRequest, *ServerStream[EventEnvelope]) error
}

// OutboxServer is implemented by *OutboxService.
type OutboxServer interface {
	Send(context.Context, *SendRequest) (*SendResponse, error)
	ListPending(context.Context, *ConversationRequest) (*ListPendingResponse, error)
	Sync(context.Context, *Empty) (*SyncResponse, error)
	Retry(context.Context, *ConversationRequest) (*SyncResponse, error)
	Discard(context.Context, *DiscardRequest) (*Ack, error)
	SaveDraft(context.Context, *DraftRequest) (*Ack, error)
	GetDraft(context.Context, *ConversationRequest) (*DraftResponse, error)
	DiscardDraft(context.Context, *ConversationRequest) (*Ack, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	ClearCache(context.Context, *ClearCacheRequest) (*Ack, error)
}

// NotificationServer is implemented by *NotificationService.
type NotificationServer interface {
	List(context.Context, *Empty) (*notify.Snapshot, error)
	Refresh(context.Context, *Empty) (*notify.Snapshot, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	MarkAllRead(context.Context, *Empty) (*MarkReadResponse, error)
	Watch(*Empty, *ServerStream[notify.Snapshot]) error
}

func unary[Req, Resp any](service, method string, call func(srv any, ctx context.Context, in *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func serverStream[Req, Resp any](method string, call func(srv any, in *Req, stream *ServerStream[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv, in, &ServerStream[Resp]{ServerStream: stream})
		},
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", func(srv any, ctx context.Context, in *Empty) (*StatusResponse, error) {
			return srv.(SessionServer).GetStatus(ctx, in)
		}),
		unary(SessionServiceName, "Login", func(srv any, ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
			return srv.(SessionServer).Login(ctx, in)
		}),
		unary(SessionServiceName, "Logout", func(srv any, ctx context.Context, in *Empty) (*Ack, error) {
			return srv.(SessionServer).Logout(ctx, in)
		}),
		unary(SessionServiceName, "SetOffline", func(srv any, ctx context.Context, in *SetOfflineRequest) (*StatusResponse, error) {
			return srv.(SessionServer).SetOffline(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchEvents", func(srv any, in *WatchRequest, s *ServerStream[EventEnvelope]) error {
			return srv.(SessionServer).WatchEvents(in, s)
		}),
	},
}

var OutboxServiceDesc = grpc.ServiceDesc{
	ServiceName: OutboxServiceName,
	HandlerType: (*OutboxServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(OutboxServiceName, "Send", func(srv any, ctx context.Context, in *SendRequest) (*SendResponse, error) {
			return srv.(OutboxServer).Send(ctx, in)
		}),
		unary(OutboxServiceName, "ListPending", func(srv any, ctx context.Context, in *ConversationRequest) (*ListPendingResponse, error) {
			return srv.(OutboxServer).ListPending(ctx, in)
		}),
		unary(OutboxServiceName, "Sync", func(srv any, ctx context.Context, in *Empty) (*SyncResponse, error) {
			return srv.(OutboxServer).Sync(ctx, in)
		}),
		unary(OutboxServiceName, "Retry", func(srv any, ctx context.Context, in *ConversationRequest) (*SyncResponse, error) {
			return srv.(OutboxServer).Retry(ctx, in)
		}),
		unary(OutboxServiceName, "Discard", func(srv any, ctx context.Context, in *DiscardRequest) (*Ack, error) {
			return srv.(OutboxServer).Discard(ctx, in)
		}),
		unary(OutboxServiceName, "SaveDraft", func(srv any, ctx context.Context, in *DraftRequest) (*Ack, error) {
			return srv.(OutboxServer).SaveDraft(ctx, in)
		}),
		unary(OutboxServiceName, "GetDraft", func(srv any, ctx context.Context, in *ConversationRequest) (*DraftResponse, error) {
			return srv.(OutboxServer).GetDraft(ctx, in)
		}),
		unary(OutboxServiceName, "DiscardDraft", func(srv any, ctx context.Context, in *ConversationRequest) (*Ack, error) {
			return srv.(OutboxServer).DiscardDraft(ctx, in)
		}),
		unary(OutboxServiceName, "ListMessages", func(srv any, ctx context.Context, in *ListMessagesRequest) (*ListMessagesResponse, error) {
			return srv.(OutboxServer).ListMessages(ctx, in)
		}),
		unary(OutboxServiceName, "ClearCache", func(srv any, ctx context.Context, in *ClearCacheRequest) (*Ack, error) {
			return srv.(OutboxServer).ClearCache(ctx, in)
		}),
	},
}

var NotificationServiceDesc = grpc.ServiceDesc{
	ServiceName: NotificationServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(NotificationServiceName, "List", func(srv any, ctx context.Context, in *Empty) (*notify.Snapshot, error) {
			return srv.(NotificationServer).List(ctx, in)
		}),
		unary(NotificationServiceName, "Refresh", func(srv any, ctx context.Context, in *Empty) (*notify.Snapshot, error) {
			return srv.(NotificationServer).Refresh(ctx, in)
		}),
		unary(NotificationServiceName, "MarkRead", func(srv any, ctx context.Context, in *MarkReadRequest) (*MarkReadResponse, error) {
			return srv.(NotificationServer).MarkRead(ctx, in)
		}),
		unary(NotificationServiceName, "MarkAllRead", func(srv any, ctx context.Context, in *Empty) (*MarkReadResponse, error) {
			return srv.(NotificationServer).MarkAllRead(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		serverStream("Watch", func(srv any, in *Empty, s *ServerStream[notify.Snapshot]) error {
			return srv.(NotificationServer).Watch(in, s)
		}),
	},
}

// RegisterSessionServer registers the session service on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// RegisterOutboxServer registers the outbox service on s.
func RegisterOutboxServer(s grpc.ServiceRegistrar, srv OutboxServer) {
	s.RegisterService(&OutboxServiceDesc, srv)
}

// RegisterNotificationServer registers the notification service on s.
func RegisterNotificationServer(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&NotificationServiceDesc, srv)
}
