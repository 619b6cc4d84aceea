package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/connectivity"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/realtime"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/status"
)

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	rt        Runtime
	startedAt time.Time
	machine   *status.Machine
	manager   *session.Manager
	monitor   *connectivity.Monitor
	channel   *realtime.Channel
	sync      *outbox.Synchronizer
	notes     *notify.Store
	bus       *bus.Bus
}

// NewSessionService creates a new session service.
func NewSessionService(
	rt Runtime,
	machine *status.Machine,
	manager *session.Manager,
	monitor *connectivity.Monitor,
	channel *realtime.Channel,
	sync *outbox.Synchronizer,
	notes *notify.Store,
	b *bus.Bus,
) *SessionService {
	return &SessionService{
		rt:        rt,
		startedAt: time.Now(),
		machine:   machine,
		manager:   manager,
		monitor:   monitor,
		channel:   channel,
		sync:      sync,
		notes:     notes,
		bus:       b,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	return s.status(), nil
}

func (s *SessionService) status() *StatusResponse {
	resp := &StatusResponse{
		Session:   s.rt.Session,
		Status:    string(s.machine.Current()),
		StoreMode: s.rt.StoreMode,
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
	}
	if s.manager != nil {
		resp.Authenticated = s.manager.Authenticated()
		if c := s.manager.Credentials(); c != nil {
			resp.Subject = c.Subject
			if !c.ExpiresAt.IsZero() {
				resp.ExpiresAtUnixMs = c.ExpiresAt.UnixMilli()
			}
		}
	}
	if s.monitor != nil {
		resp.Online = s.monitor.Online()
		resp.ForcedOffline = s.monitor.Forced()
	}
	if s.channel != nil {
		resp.RealtimeConnected = s.channel.Connected()
	}
	if s.sync != nil {
		resp.Pending = s.sync.PendingCount()
		resp.Syncing = s.sync.Syncing()
		resp.Errors = s.sync.Errors()
	}
	if s.notes != nil {
		resp.Unread = s.notes.Unread()
	}
	if s.bus != nil {
		resp.EventsDropped = s.bus.Dropped()
	}
	return resp
}

func (s *SessionService) Login(_ context.Context, req *LoginRequest) (*LoginResponse, error) {
	if s.manager == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "session manager not initialized")
	}
	c, err := s.manager.Login(req.Token)
	if err != nil {
		return nil, toStatus("login", err)
	}
	resp := &LoginResponse{Subject: c.Subject}
	if !c.ExpiresAt.IsZero() {
		resp.ExpiresAtUnixMs = c.ExpiresAt.UnixMilli()
	}
	return resp, nil
}

func (s *SessionService) Logout(_ context.Context, _ *Empty) (*Ack, error) {
	if s.manager == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "session manager not initialized")
	}
	if err := s.manager.Logout(); err != nil {
		return nil, toStatus("logout", err)
	}
	return &Ack{Message: "logged out"}, nil
}

func (s *SessionService) SetOffline(ctx context.Context, req *SetOfflineRequest) (*StatusResponse, error) {
	if s.monitor == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "connectivity monitor not initialized")
	}
	s.monitor.ForceOffline(ctx, req.Offline)
	return s.status(), nil
}

func (s *SessionService) WatchEvents(req *WatchRequest, stream *ServerStream[EventEnvelope]) error {
	ch, unsub := s.bus.Subscribe(req.Namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if err := stream.Send(s.envelope(evt)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *SessionService) envelope(evt bus.Event) *EventEnvelope {
	env := &EventEnvelope{
		EventID:          uuid.NewString(),
		Session:          s.rt.Session,
		Kind:             evt.Kind,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
	}
	// Credentials never leave the daemon.
	if evt.Payload != nil && evt.Kind != bus.SessionAuthenticated {
		if data, err := json.Marshal(evt.Payload); err == nil {
			env.Payload = data
		}
	}
	return env
}
