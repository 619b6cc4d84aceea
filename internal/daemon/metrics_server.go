package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/config"
	"github.com/matheus3301/outpost/internal/connectivity"
	"github.com/matheus3301/outpost/internal/metrics"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/status"
)

// MetricsServer serves /metrics and /healthz when [metrics] addr is set.
// A nil *MetricsServer is valid and does nothing.
type MetricsServer struct {
	srv    *http.Server
	logger *zap.Logger
}

type health struct {
	Status    string `json:"status"`
	StoreMode string `json:"storeMode"`
	Online    bool   `json:"online"`
	Pending   int    `json:"pending"`
}

// NewMetricsServer builds the listener; it returns nil when disabled.
func NewMetricsServer(cfg *config.Config, mode StoreMode, machine *status.Machine, monitor *connectivity.Monitor, sync *outbox.Synchronizer, logger *zap.Logger) *MetricsServer {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	return &MetricsServer{
		srv: &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           Router(mode, machine, monitor, sync),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Router mounts the metrics and health endpoints.
func Router(mode StoreMode, machine *status.Machine, monitor *connectivity.Monitor, sync *outbox.Synchronizer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h := health{
			Status:    string(machine.Current()),
			StoreMode: string(mode),
			Online:    monitor.Online(),
			Pending:   sync.PendingCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		if machine.Current() == status.Error {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Start serves in the background.
func (m *MetricsServer) Start() {
	if m == nil {
		return
	}
	go func() {
		m.logger.Info("metrics server listening", zap.String("addr", m.srv.Addr))
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down.
func (m *MetricsServer) Stop(ctx context.Context) {
	if m == nil {
		return
	}
	if err := m.srv.Shutdown(ctx); err != nil {
		_ = m.srv.Close()
	}
}
