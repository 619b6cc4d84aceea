package api

import (
	"context"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/notify"
)

// NotificationService implements the NotificationService gRPC service.
type NotificationService struct {
	notes *notify.Store
	bus   *bus.Bus
}

// NewNotificationService creates a new notification service.
func NewNotificationService(notes *notify.Store, b *bus.Bus) *NotificationService {
	return &NotificationService{notes: notes, bus: b}
}

func (s *NotificationService) List(_ context.Context, _ *Empty) (*notify.Snapshot, error) {
	snap := s.notes.Snapshot()
	return &snap, nil
}

// Refresh re-fetches from the server. The fetch error is carried in the
// snapshot's LastError so surfaces still get the (empty) list.
func (s *NotificationService) Refresh(ctx context.Context, _ *Empty) (*notify.Snapshot, error) {
	_ = s.notes.Fetch(ctx)
	snap := s.notes.Snapshot()
	return &snap, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	if err := s.notes.MarkAsRead(ctx, req.ID); err != nil {
		return nil, toStatus("mark read", err)
	}
	return &MarkReadResponse{Unread: s.notes.Unread()}, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, _ *Empty) (*MarkReadResponse, error) {
	if err := s.notes.MarkAllAsRead(ctx); err != nil {
		return nil, toStatus("mark all read", err)
	}
	return &MarkReadResponse{Unread: s.notes.Unread()}, nil
}

// Watch sends the current snapshot, then a fresh one after every change.
func (s *NotificationService) Watch(_ *Empty, stream *ServerStream[notify.Snapshot]) error {
	ch, unsub := s.bus.Subscribe("notification.", 64)
	defer unsub()

	snap := s.notes.Snapshot()
	if err := stream.Send(&snap); err != nil {
		return err
	}
	for {
		select {
		case <-ch:
			snap := s.notes.Snapshot()
			if err := stream.Send(&snap); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
