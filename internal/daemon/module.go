package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/api"
	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/config"
	"github.com/matheus3301/outpost/internal/connectivity"
	"github.com/matheus3301/outpost/internal/lock"
	"github.com/matheus3301/outpost/internal/logging"
	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/realtime"
	"github.com/matheus3301/outpost/internal/remote"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/status"
	"github.com/matheus3301/outpost/internal/store"
	"github.com/matheus3301/outpost/internal/store/redis"
	"github.com/matheus3301/outpost/internal/store/sqlite"
	intsync "github.com/matheus3301/outpost/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load ~/.outpost/config.toml
}

// StoreMode names the engine actually serving the session. It differs from
// the configured engine after a fallback to memory.
type StoreMode string

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideIDs,
			provideStore,
			provideSession,
			provideRemote,
			provideMonitor,
			provideSynchronizer,
			provideNotifications,
			provideRealtime,
			provideSyncEngine,
			provideEventHandler,
			provideRuntime,
			api.NewSessionService,
			api.NewOutboxService,
			api.NewNotificationService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, config.Validate(p.Config)
	}
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideIDs() (*store.IDGenerator, error) {
	return store.NewIDGenerator(1)
}

type storeOut struct {
	fx.Out

	Store store.Store
	Mode  StoreMode
}

// provideStore opens the configured engine. The lock is taken as a
// dependency so two daemons never open the same database. When Init fails
// the session degrades to the memory engine instead of refusing to start.
func provideStore(p Params, cfg *config.Config, ids *store.IDGenerator, _ *lock.Lock, logger *zap.Logger) storeOut {
	var st store.Store
	switch cfg.Store.Engine {
	case "memory":
		return storeOut{Store: store.NewMemory(ids), Mode: "memory"}
	case "redis":
		st = redis.New(redis.Config{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   "outpost:" + p.SessionName + ":",
		}, ids, logger)
	default:
		st = sqlite.New(session.DBPath(p.SessionName), ids)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Init(ctx); err != nil {
		logger.Error("store init failed, falling back to memory",
			zap.String("engine", cfg.Store.Engine), zap.Error(err))
		_ = st.Close()
		return storeOut{Store: store.NewMemory(ids), Mode: "memory"}
	}
	logger.Info("store initialized", zap.String("engine", cfg.Store.Engine))
	return storeOut{Store: st, Mode: StoreMode(cfg.Store.Engine)}
}

func provideSession(p Params, b *bus.Bus, logger *zap.Logger) (*session.Manager, error) {
	m := session.NewManager(session.CredentialsPath(p.SessionName), b, logger)
	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return m, nil
}

func provideRemote(cfg *config.Config, m *session.Manager, logger *zap.Logger) *remote.Client {
	return remote.New(remote.Config{
		BaseURL:    cfg.Server.BaseURL,
		CookieName: cfg.Server.CookieName,
		Timeout:    cfg.Server.RequestTimeout.Duration,
	}, m, logger)
}

func provideMonitor(client *remote.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *connectivity.Monitor {
	return connectivity.New(client, b, connectivity.Config{
		Interval: cfg.Connectivity.ProbeInterval.Duration,
		Timeout:  cfg.Connectivity.ProbeTimeout.Duration,
	}, logger)
}

func provideSynchronizer(st store.Store, client *remote.Client, monitor *connectivity.Monitor, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Synchronizer {
	return outbox.NewSynchronizer(st, client, monitor, b, outbox.Config{
		Debounce:  cfg.Outbox.Debounce.Duration,
		SendRate:  cfg.Outbox.SendRate,
		SendBurst: cfg.Outbox.SendBurst,
	}, logger)
}

func provideNotifications(client *remote.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *notify.Store {
	return notify.New(client, b, notify.Config{
		FetchAttempts: cfg.Notifications.FetchAttempts,
		RetryBase:     cfg.Notifications.RetryBase.Duration,
	}, logger)
}

func provideRealtime(client *remote.Client, notes *notify.Store, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *realtime.Channel {
	ep := realtime.Endpoint{BaseURL: client.BaseURL(), CookieName: client.CookieName()}
	var d realtime.Dialer
	switch cfg.Realtime.Transport {
	case "websocket":
		d = &realtime.WSDialer{Endpoint: ep}
	default:
		// No client timeout: the stream stays open indefinitely.
		d = &realtime.SSEDialer{Endpoint: ep, Client: &http.Client{}}
	}
	return realtime.New(d, notes, b, realtime.Config{
		ReconnectDelay: cfg.Realtime.ReconnectDelay.Duration,
		ReconnectMax:   cfg.Realtime.ReconnectMax.Duration,
		Factor:         cfg.Realtime.ReconnectFactor,
	}, logger)
}

func provideSyncEngine(st store.Store, client *remote.Client, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(st, client, b, logger)
}

func provideEventHandler(b *bus.Bus, m *status.Machine, mgr *session.Manager, monitor *connectivity.Monitor, ch *realtime.Channel, notes *notify.Store, logger *zap.Logger) *EventHandler {
	return NewEventHandler(b, m, mgr, monitor, ch, notes, logger)
}

func provideRuntime(p Params, mode StoreMode) api.Runtime {
	return api.Runtime{Session: p.SessionName, StoreMode: string(mode)}
}

type lifecycleParams struct {
	fx.In

	Server  *Server
	Metrics *MetricsServer
	Lock    *lock.Lock
	Store   store.Store
	Monitor *connectivity.Monitor
	Sync    *outbox.Synchronizer
	Engine  *intsync.Engine
	Handler *EventHandler
	Machine *status.Machine
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers first so the monitor's first online edge is seen.
			d.Sync.Start(ctx)
			d.Engine.Start(ctx)
			d.Handler.Start(ctx)
			d.Monitor.Start(ctx)

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
					_ = d.Machine.Transition(status.Error)
				}
			}()
			d.Metrics.Start()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			d.Server.Stop(stopCtx)
			d.Metrics.Stop(stopCtx)
			d.Monitor.Stop()
			d.Handler.Stop()
			d.Sync.Stop()
			d.Engine.Stop()
			cancel()
			if err := d.Store.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			return nil
		},
	})
}
