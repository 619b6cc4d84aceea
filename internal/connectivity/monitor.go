// Package connectivity tracks whether the server is reachable and announces
// the edges on the bus.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/metrics"
)

// Prober checks reachability once.
type Prober interface {
	Probe(ctx context.Context) error
}

// Config tunes probing.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor owns the online flag. It starts offline until the first probe.
type Monitor struct {
	prober Prober
	bus    *bus.Bus
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	online bool
	forced bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor.
func New(p Prober, b *bus.Bus, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Monitor{prober: p, bus: b, cfg: cfg, logger: logger}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online && !m.forced
}

// Forced reports whether the offline override is active.
func (m *Monitor) Forced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

// Start probes once, then keeps probing on the interval until Stop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.Recheck(ctx)
	go m.loop(ctx)
}

// Stop ends the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Recheck(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Recheck probes now and returns the resulting state. Probes are ignored
// while the offline override is active.
func (m *Monitor) Recheck(ctx context.Context) bool {
	if m.Forced() {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.prober.Probe(pctx)
	cancel()
	if ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("probe failed", zap.Error(err))
	}
	m.set(err == nil)
	return m.Online()
}

// ForceOffline turns the offline override on or off. Clearing it probes
// immediately.
func (m *Monitor) ForceOffline(ctx context.Context, on bool) {
	m.mu.Lock()
	was := m.online && !m.forced
	m.forced = on
	m.mu.Unlock()

	if on {
		if was {
			m.publish(false)
		}
		return
	}
	m.mu.Lock()
	m.online = false
	m.mu.Unlock()
	m.Recheck(ctx)
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	if m.forced || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.mu.Unlock()
	m.publish(online)
}

func (m *Monitor) publish(online bool) {
	metrics.SetOnline(online)
	if online {
		m.logger.Info("server reachable")
		m.bus.Emit(bus.ConnectivityOnline, nil)
		return
	}
	m.logger.Info("server unreachable")
	m.bus.Emit(bus.ConnectivityOffline, nil)
}
