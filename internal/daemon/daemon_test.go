package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/config"
	"github.com/matheus3301/outpost/internal/connectivity"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/realtime"
	"github.com/matheus3301/outpost/internal/remote"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/status"
	"github.com/matheus3301/outpost/internal/store"
	intsync "github.com/matheus3301/outpost/internal/sync"
)

// fakeWebApp serves the subset of the web application the daemon talks to.
type fakeWebApp struct {
	streamStatus atomic.Int32
	sent         atomic.Int32
	read         atomic.Bool
}

func (f *fakeWebApp) handler() http.Handler {
	note := notify.Record{ID: "n1", Type: "like", Content: "liked your post", CreatedAt: time.UnixMilli(1700000000000).UTC()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ConversationID  string `json:"conversationId"`
			Content         string `json:"content"`
			ClientMessageID string `json:"clientMessageId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.sent.Add(1)
		_ = json.NewEncoder(w).Encode(store.CachedMessage{
			ID:             "srv-" + body.ClientMessageID,
			ConversationID: body.ConversationID,
			Content:        body.Content,
			SenderID:       "me",
			Timestamp:      time.Now().UnixMilli(),
		})
	})
	mux.HandleFunc("GET /api/messages/{conv}", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []store.CachedMessage{}})
	})
	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, _ *http.Request) {
		n, unread := note, 1
		if f.read.Load() {
			n.Read, unread = true, 0
		}
		_ = json.NewEncoder(w).Encode(notify.Page{Notifications: []notify.Record{n}, UnreadCount: unread})
	})
	mux.HandleFunc("PATCH /api/notifications/{id}", func(w http.ResponseWriter, _ *http.Request) {
		f.read.Store(true)
		_ = json.NewEncoder(w).Encode(map[string]int{"unreadCount": 0})
	})
	mux.HandleFunc("GET /api/notifications/stream", func(w http.ResponseWriter, r *http.Request) {
		if code := int(f.streamStatus.Load()); code != 0 {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		data, _ := json.Marshal(note)
		_, _ = fmt.Fprintf(w, "id: 1\nevent: notification\ndata: %s\n\n", data)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	return mux
}

type harness struct {
	web     *fakeWebApp
	bus     *bus.Bus
	machine *status.Machine
	monitor *connectivity.Monitor
	client  *api.Client
}

func newHarness(t *testing.T, streamStatus int) *harness {
	t.Helper()

	// Use a short path to avoid the 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "outpost-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	web := &fakeWebApp{}
	web.streamStatus.Store(int32(streamStatus))
	srv := httptest.NewServer(web.handler())
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	st := store.NewMemory(store.MustIDGenerator(1))
	mgr := session.NewManager(filepath.Join(tmpDir, "credentials.toml"), b, logger)
	rc := remote.New(remote.Config{BaseURL: srv.URL}, mgr, logger)
	monitor := connectivity.New(rc, b, connectivity.Config{Interval: time.Hour}, logger)
	syncer := outbox.NewSynchronizer(st, rc, monitor, b, outbox.Config{Debounce: 10 * time.Millisecond}, logger)
	notes := notify.New(rc, b, notify.Config{RetryBase: time.Millisecond}, logger)
	channel := realtime.New(&realtime.SSEDialer{Endpoint: realtime.Endpoint{BaseURL: srv.URL}},
		notes, b, realtime.Config{ReconnectDelay: 20 * time.Millisecond}, logger)
	engine := intsync.NewEngine(st, rc, b, logger)
	handler := NewEventHandler(b, machine, mgr, monitor, channel, notes, logger)

	ctx, cancel := context.WithCancel(context.Background())
	syncer.Start(ctx)
	engine.Start(ctx)
	handler.Start(ctx)
	monitor.Start(ctx)

	grpcSrv := grpc.NewServer()
	api.RegisterSessionServer(grpcSrv, api.NewSessionService(api.Runtime{Session: "test", StoreMode: "memory"}, machine, mgr, monitor, channel, syncer, notes, b))
	api.RegisterOutboxServer(grpcSrv, api.NewOutboxService(syncer, st, engine, monitor, logger))
	api.RegisterNotificationServer(grpcSrv, api.NewNotificationService(notes, b))

	socketPath := filepath.Join(tmpDir, "d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = grpcSrv.Serve(listener) }()

	client, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		grpcSrv.Stop()
		monitor.Stop()
		handler.Stop()
		syncer.Stop()
		engine.Stop()
		cancel()
	})
	return &harness{web: web, bus: b, machine: machine, monitor: monitor, client: client}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func statusOf(t *testing.T, c *api.Client) *api.StatusResponse {
	t.Helper()
	resp, err := c.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	return resp
}

// TestStatusTransitionsToAuthRequired verifies the daemon leaves BOOTING
// when no credentials exist.
func TestStatusTransitionsToAuthRequired(t *testing.T) {
	h := newHarness(t, 0)

	resp := statusOf(t, h.client)
	if resp.Session != "test" {
		t.Errorf("session = %q, want test", resp.Session)
	}
	if resp.Status != string(status.AuthRequired) {
		t.Errorf("status = %s, want AUTH_REQUIRED; daemon must not stay in BOOTING when unauthenticated", resp.Status)
	}
	if !resp.Online {
		t.Error("expected online after the first probe")
	}
	if resp.StoreMode != "memory" {
		t.Errorf("store mode = %q, want memory", resp.StoreMode)
	}
}

func TestDaemonRoundTrip(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	if _, err := h.client.Login(ctx, "tok-1"); err != nil {
		t.Fatalf("Login error = %v", err)
	}
	waitFor(t, "ONLINE after login", func() bool { return statusOf(t, h.client).Status == string(status.Online) })
	waitFor(t, "notification n1", func() bool {
		snap, err := h.client.Notifications(ctx)
		return err == nil && len(snap.Notifications) == 1 && snap.Unread == 1
	})

	// Airplane mode: messages queue locally and manual sync is refused.
	resp, err := h.client.SetOffline(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Online || !resp.ForcedOffline {
		t.Fatalf("online = %v forced = %v, want offline override", resp.Online, resp.ForcedOffline)
	}
	waitFor(t, "OFFLINE status", func() bool { return statusOf(t, h.client).Status == string(status.Offline) })

	sent, err := h.client.Send(ctx, "c1", "hello")
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if sent.Entry.Status != store.StatusPending || sent.Entry.ClientMsgID == "" {
		t.Errorf("entry = %+v, want pending with client id", sent.Entry)
	}
	pending, err := h.client.ListPending(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending.Pending))
	}
	if _, err := h.client.Sync(ctx); grpcstatus.Code(err) != codes.Unavailable {
		t.Errorf("Sync offline code = %v, want Unavailable", grpcstatus.Code(err))
	}
	if h.web.sent.Load() != 0 {
		t.Error("nothing may reach the server while offline")
	}

	// Back online: the online edge drains the outbox.
	if _, err := h.client.SetOffline(ctx, false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "outbox drained", func() bool {
		p, err := h.client.ListPending(ctx, "")
		return err == nil && len(p.Pending) == 0 && len(p.Failed) == 0
	})
	msgs, err := h.client.ListMessages(ctx, &api.ListMessagesRequest{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 1 || msgs.Messages[0].ID != "srv-"+sent.Entry.ClientMsgID {
		t.Errorf("cached messages = %+v, want the confirmed copy", msgs.Messages)
	}

	read, err := h.client.MarkRead(ctx, "n1")
	if err != nil {
		t.Fatalf("MarkRead error = %v", err)
	}
	if read.Unread != 0 {
		t.Errorf("unread = %d, want 0", read.Unread)
	}
	if _, err := h.client.MarkRead(ctx, "nope"); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("MarkRead unknown code = %v, want NotFound", grpcstatus.Code(err))
	}
	if _, err := h.client.ClearCache(ctx, &api.ClearCacheRequest{}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("ClearCache without scope code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
	if _, err := h.client.Send(ctx, "c1", "   "); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("Send blank code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
}

// TestRealtimeUnauthorizedLogsOut verifies a 401 on the stream drops the
// credentials and returns the daemon to AUTH_REQUIRED.
func TestRealtimeUnauthorizedLogsOut(t *testing.T) {
	h := newHarness(t, http.StatusUnauthorized)

	if _, err := h.client.Login(context.Background(), "tok-stale"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "AUTH_REQUIRED after rejected stream", func() bool {
		resp := statusOf(t, h.client)
		return resp.Status == string(status.AuthRequired) && !resp.Authenticated
	})
}

func TestWatchEventsStreamsOutboxEvents(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := h.client.WatchEvents(ctx, "outbox.queued")
	if err != nil {
		t.Fatal(err)
	}
	// The subscription is registered asynchronously on the server.
	time.Sleep(50 * time.Millisecond)
	if _, err := h.client.Send(ctx, "c9", "hi"); err != nil {
		t.Fatal(err)
	}

	env, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv error = %v", err)
	}
	if env.Kind != bus.OutboxQueued || env.Session != "test" || env.EventID == "" {
		t.Errorf("envelope = %+v", env)
	}
	var payload bus.OutboxEntryEvent
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.ConversationID != "c9" {
		t.Errorf("payload conversation = %q, want c9", payload.ConversationID)
	}
}

func TestWatchNotificationsSendsSnapshot(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := h.client.WatchNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv error = %v", err)
	}
	if snap.State != notify.Reconciled {
		t.Errorf("state = %q, want reconciled", snap.State)
	}
}

func TestHealthz(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)
	monitor := connectivity.New(nil, b, connectivity.Config{}, zap.NewNop())
	syncer := outbox.NewSynchronizer(store.NewMemory(store.MustIDGenerator(1)), nil, monitor, b, outbox.Config{}, zap.NewNop())

	srv := httptest.NewServer(Router("sqlite", machine, monitor, syncer))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var h health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || h.Status != string(status.Booting) || h.StoreMode != "sqlite" {
		t.Errorf("healthz = %d %+v", resp.StatusCode, h)
	}

	mresp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	_ = mresp.Body.Close()
	if mresp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", mresp.StatusCode)
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "outpost-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	t.Setenv(session.HomeEnv, tmpDir)

	cfg := config.Default()
	cfg.Store.Engine = "memory"
	p := Params{SessionName: "fxtest", SocketPath: filepath.Join(tmpDir, "d.sock"), Config: cfg}
	if err := fx.ValidateApp(Module(p), fx.NopLogger); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

// TestNewServerUsesSocketOverride verifies NewServer takes Params (not a
// bare string, which fx cannot resolve) and binds the override path.
func TestNewServerUsesSocketOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "outpost-srv-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")
	b := bus.New()
	notes := notify.New(nil, b, notify.Config{}, zap.NewNop())
	srv, err := NewServer(
		Params{SessionName: "srvtest", SocketPath: socketPath},
		zap.NewNop(),
		api.NewSessionService(api.Runtime{Session: "srvtest"}, status.NewMachine(nil), nil, nil, nil, nil, nil, b),
		api.NewOutboxService(nil, nil, nil, nil, zap.NewNop()),
		api.NewNotificationService(notes, b),
	)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}

	info, statErr := os.Stat(socketPath)
	if statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket not removed on Stop: %v", err)
	}
}

func TestEventHandlerSettlesOnConnectivity(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)
	mgr := session.NewManager(filepath.Join(t.TempDir(), "credentials.toml"), b, zap.NewNop())
	if _, err := mgr.Login("tok"); err != nil {
		t.Fatal(err)
	}
	monitor := connectivity.New(nil, b, connectivity.Config{}, zap.NewNop())
	notes := notify.New(nil, b, notify.Config{}, zap.NewNop())
	channel := realtime.New(&realtime.SSEDialer{Endpoint: realtime.Endpoint{BaseURL: "http://127.0.0.1:1"}}, notes, b, realtime.Config{}, zap.NewNop())
	h := NewEventHandler(b, machine, mgr, monitor, channel, notes, zap.NewNop())
	ctx := context.Background()

	h.settle()
	if machine.Current() != status.Offline {
		t.Fatalf("state = %s, want OFFLINE with credentials but no connectivity", machine.Current())
	}
	if err := mgr.Logout(); err != nil {
		t.Fatal(err)
	}
	h.Handle(ctx, bus.Event{Kind: bus.SessionLoggedOut})
	if machine.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED after logout event", machine.Current())
	}
}
