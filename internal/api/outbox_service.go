package api

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/outpost/internal/connectivity"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/store"
	intsync "github.com/matheus3301/outpost/internal/sync"
)

// OutboxService implements the OutboxService gRPC service.
type OutboxService struct {
	sync    *outbox.Synchronizer
	store   store.Store
	engine  *intsync.Engine
	monitor *connectivity.Monitor
	logger  *zap.Logger
}

// NewOutboxService creates a new outbox service.
func NewOutboxService(sync *outbox.Synchronizer, st store.Store, engine *intsync.Engine, monitor *connectivity.Monitor, logger *zap.Logger) *OutboxService {
	return &OutboxService{sync: sync, store: st, engine: engine, monitor: monitor, logger: logger}
}

func (s *OutboxService) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	e, err := s.sync.SaveMessageLocally(ctx, req.ConversationID, req.Content)
	if err != nil {
		return nil, toStatus("send", err)
	}
	return &SendResponse{Entry: *e}, nil
}

func (s *OutboxService) ListPending(ctx context.Context, req *ConversationRequest) (*ListPendingResponse, error) {
	pending, err := s.sync.Pending(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus("list pending", err)
	}
	failed, err := s.sync.Failed(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus("list failed", err)
	}
	return &ListPendingResponse{Pending: pending, Failed: failed}, nil
}

func (s *OutboxService) Sync(ctx context.Context, _ *Empty) (*SyncResponse, error) {
	res, err := s.sync.SyncPendingMessages(ctx)
	if err != nil {
		return nil, toStatus("sync", err)
	}
	return s.syncResponse(res), nil
}

func (s *OutboxService) Retry(ctx context.Context, req *ConversationRequest) (*SyncResponse, error) {
	res, err := s.sync.RetryFailedMessages(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus("retry", err)
	}
	return s.syncResponse(res), nil
}

func (s *OutboxService) syncResponse(res outbox.Result) *SyncResponse {
	return &SyncResponse{
		Sent:      res.Sent,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Collapsed: res.Collapsed,
		Pending:   s.sync.PendingCount(),
	}
}

func (s *OutboxService) Discard(ctx context.Context, req *DiscardRequest) (*Ack, error) {
	if err := s.sync.DiscardEntry(ctx, req.ID); err != nil {
		return nil, toStatus("discard", err)
	}
	return &Ack{Message: "entry discarded"}, nil
}

func (s *OutboxService) SaveDraft(ctx context.Context, req *DraftRequest) (*Ack, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation id required")
	}
	if err := s.sync.SaveDraft(ctx, req.ConversationID, req.Content); err != nil {
		return nil, toStatus("save draft", err)
	}
	return &Ack{Message: "draft saved"}, nil
}

func (s *OutboxService) GetDraft(ctx context.Context, req *ConversationRequest) (*DraftResponse, error) {
	d, err := s.sync.GetDraft(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus("get draft", err)
	}
	return &DraftResponse{Draft: d}, nil
}

func (s *OutboxService) DiscardDraft(ctx context.Context, req *ConversationRequest) (*Ack, error) {
	if err := s.sync.DiscardDraft(ctx, req.ConversationID); err != nil {
		return nil, toStatus("discard draft", err)
	}
	return &Ack{Message: "draft discarded"}, nil
}

func (s *OutboxService) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation id required")
	}
	resp := &ListMessagesResponse{}
	if req.Refresh && s.engine != nil {
		if s.monitor != nil && !s.monitor.Online() {
			resp.Warning = "offline, showing cached messages"
		} else if n, err := s.engine.Pull(ctx, req.ConversationID); err != nil {
			s.logger.Warn("message pull failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
			resp.Warning = err.Error()
		} else {
			resp.Pulled = n
		}
	}

	msgs, err := s.store.GetMessages(ctx, req.ConversationID, req.Limit)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	resp.Messages = msgs
	return resp, nil
}

func (s *OutboxService) ClearCache(ctx context.Context, req *ClearCacheRequest) (*Ack, error) {
	switch {
	case req.All:
		if err := s.store.ClearAll(ctx); err != nil {
			return nil, toStatus("clear all", err)
		}
		s.sync.RecountPending(ctx)
		if s.engine != nil {
			for _, conv := range s.engine.Tracked() {
				s.engine.Forget(conv)
			}
		}
		return &Ack{Message: "local store cleared"}, nil
	case req.ConversationID != "":
		if err := s.store.DeleteConversationCache(ctx, req.ConversationID); err != nil {
			return nil, toStatus("clear conversation", err)
		}
		if s.engine != nil {
			s.engine.Forget(req.ConversationID)
		}
		return &Ack{Message: "conversation cache cleared"}, nil
	default:
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation id or all required")
	}
}
