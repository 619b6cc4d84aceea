package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/connectivity"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/realtime"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/status"
)

// EventHandler reacts to session, connectivity and realtime events: it
// drives the state machine and opens or closes the realtime channel. It does
// NOT touch the outbox; the Synchronizer subscribes to the bus on its own.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	manager *session.Manager
	monitor *connectivity.Monitor
	channel *realtime.Channel
	notes   *notify.Store
	logger  *zap.Logger

	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, manager *session.Manager, monitor *connectivity.Monitor, channel *realtime.Channel, notes *notify.Store, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		manager: manager,
		monitor: monitor,
		channel: channel,
		notes:   notes,
		logger:  logger,
	}
}

// Start subscribes to the bus and brings the session up if credentials are
// already present.
func (h *EventHandler) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = h.bus.Handle(ctx, "", 256, func(evt bus.Event) { h.Handle(ctx, evt) })

	if c := h.manager.Credentials(); c != nil && h.manager.Authenticated() {
		h.openChannel(ctx, c.Token)
	} else {
		h.logger.Info("no credentials found, auth required")
	}
	h.settle()
}

// Stop unsubscribes and closes the realtime channel.
func (h *EventHandler) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	h.channel.Stop()
}

// Handle processes one bus event.
func (h *EventHandler) Handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.SessionAuthenticated:
		if c, ok := evt.Payload.(session.Credentials); ok {
			h.openChannel(ctx, c.Token)
		}
		h.settle()
	case bus.SessionLoggedOut:
		h.logger.Info("session closed, stopping realtime channel")
		h.channel.Stop()
		h.settle()
	case bus.RealtimeUnauthorized:
		h.logger.Warn("server rejected session credentials")
		h.manager.Invalidate()
	case bus.ConnectivityOnline:
		h.settle()
		if h.manager.Authenticated() {
			h.refreshNotifications(ctx)
		}
	case bus.ConnectivityOffline:
		h.settle()
	}
}

func (h *EventHandler) openChannel(ctx context.Context, token string) {
	h.channel.Start(realtime.Credentials{Token: token})
	h.refreshNotifications(ctx)
}

func (h *EventHandler) refreshNotifications(ctx context.Context) {
	if err := h.notes.Fetch(ctx); err != nil {
		h.logger.Warn("notification fetch failed", zap.Error(err))
	}
}

// settle moves the state machine to the state implied by credentials and
// connectivity.
func (h *EventHandler) settle() {
	if !h.manager.Authenticated() {
		h.ensure(status.AuthRequired)
		return
	}
	switch h.machine.Current() {
	case status.Booting, status.AuthRequired:
		h.ensure(status.Connecting)
	}
	if h.monitor.Online() {
		h.ensure(status.Online)
	} else {
		h.ensure(status.Offline)
	}
}

func (h *EventHandler) ensure(to status.State) {
	if err := h.machine.Ensure(to); err != nil {
		h.logger.Debug("state transition skipped", zap.Error(err))
	}
}
