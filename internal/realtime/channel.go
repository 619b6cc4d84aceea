package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
	"github.com/matheus3301/outpost/internal/metrics"
	"github.com/matheus3301/outpost/internal/notify"
)

// Sink receives decoded notifications.
type Sink interface {
	Push(r notify.Record) bool
}

// Config is the reconnect policy. With Max <= Delay the delay is fixed.
type Config struct {
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
	Factor         float64
}

// Channel keeps one stream open per authenticated session and reconnects
// after failures.
type Channel struct {
	dialer Dialer
	sink   Sink
	bus    *bus.Bus
	logger *zap.Logger
	cfg    Config

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu        sync.Mutex
	creds     Credentials
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	lastID    string
}

// New creates a stopped channel.
func New(d Dialer, sink Sink, b *bus.Bus, cfg Config, logger *zap.Logger) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectDelay {
		cfg.ReconnectMax = cfg.ReconnectDelay
	}
	if cfg.Factor <= 1 {
		cfg.Factor = 2
	}
	return &Channel{dialer: d, sink: sink, bus: b, cfg: cfg, logger: logger}
}

// Start opens the stream for creds. Calling it again with the same
// credentials while running is a no-op; new credentials replace the
// connection.
func (c *Channel) Start(creds Credentials) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.cancel != nil && c.creds == creds {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.creds = creds
	c.cancel = cancel
	c.done = done
	c.lastID = ""
	c.mu.Unlock()

	go c.run(ctx, creds, done)
}

// Stop tears the stream down and waits for the loop to exit.
func (c *Channel) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stop()
}

func (c *Channel) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the channel has a session.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Connected reports whether a stream is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.cfg.ReconnectDelay,
		Max:    c.cfg.ReconnectMax,
		Factor: c.cfg.Factor,
	}
}

func (c *Channel) run(ctx context.Context, creds Credentials, done chan struct{}) {
	defer close(done)
	b := c.newBackoff()
	transport := c.dialer.Name()

	for {
		c.mu.Lock()
		lastID := c.lastID
		c.mu.Unlock()

		stream, err := c.dialer.Dial(ctx, creds, lastID)
		if err == nil {
			b.Reset()
			c.setConnected(true)
			c.logger.Info("realtime connected", zap.String("transport", transport))
			c.bus.Emit(bus.RealtimeConnected, transport)

			err = c.consume(ctx, stream)
			_ = stream.Close()
			c.setConnected(false)
			c.bus.Emit(bus.RealtimeDisconnected, transport)
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			c.logger.Warn("realtime session rejected, not reconnecting")
			c.bus.Emit(bus.RealtimeUnauthorized, transport)
			return
		}

		delay := b.Duration()
		c.logger.Debug("realtime reconnect scheduled", zap.Error(err), zap.Duration("delay", delay))
		metrics.RecordReconnect(transport)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// consume reads events until the stream fails. Cancelling ctx closes the
// stream so a blocked read returns.
func (c *Channel) consume(ctx context.Context, stream Stream) error {
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	for {
		evt, err := stream.Next()
		if err != nil {
			return err
		}
		if evt.ID != "" {
			c.mu.Lock()
			c.lastID = evt.ID
			c.mu.Unlock()
		}
		c.handle(evt)
	}
}

func (c *Channel) handle(evt Event) {
	switch evt.Name {
	case "notification":
		metrics.RecordRealtimeEvent(evt.Name)
		var r notify.Record
		if err := json.Unmarshal(evt.Data, &r); err != nil || r.ID == "" {
			c.logger.Warn("undecodable notification skipped", zap.Error(err), zap.ByteString("data", evt.Data))
			return
		}
		c.sink.Push(r)
	case "":
		c.logger.Warn("unnamed realtime frame skipped", zap.ByteString("data", evt.Data))
	default:
		c.logger.Debug("realtime event ignored", zap.String("event", evt.Name))
	}
}

func (c *Channel) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
