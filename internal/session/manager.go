package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
)

var (
	// ErrEmptyToken is returned by Login without a token.
	ErrEmptyToken = errors.New("session: empty token")
	// ErrExpired is returned by Login for a token whose exp is in the past.
	ErrExpired = errors.New("session: token expired")
)

// Manager owns the session credentials. It never verifies token signatures;
// the server does that. The exp claim is read when the token is a JWT so an
// expired cookie is rejected locally.
type Manager struct {
	path   string
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	creds *Credentials
}

// NewManager creates a manager persisting to path.
func NewManager(path string, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{path: path, bus: b, logger: logger, now: time.Now}
}

// Load restores persisted credentials. Expired ones are kept on disk but
// not considered authenticated.
func (m *Manager) Load() error {
	c, err := LoadCredentials(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()
	if c != nil {
		m.logger.Info("credentials loaded", zap.String("subject", c.Subject), zap.Bool("expired", c.Expired(m.now())))
	}
	return nil
}

// Login stores token as the session cookie and publishes session.authenticated.
func (m *Manager) Login(token string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	c := &Credentials{Token: token, SavedAt: m.now().UTC()}
	inspect(c)
	if c.Expired(m.now()) {
		return nil, ErrExpired
	}
	if err := SaveCredentials(m.path, c); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()

	m.logger.Info("session authenticated", zap.String("subject", c.Subject))
	m.bus.Emit(bus.SessionAuthenticated, *c)
	return c, nil
}

// Logout forgets the credentials and publishes session.logged_out.
func (m *Manager) Logout() error {
	if err := DeleteCredentials(m.path); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	m.mu.Lock()
	had := m.creds != nil
	m.creds = nil
	m.mu.Unlock()

	if had {
		m.logger.Info("session logged out")
		m.bus.Emit(bus.SessionLoggedOut, nil)
	}
	return nil
}

// Invalidate drops credentials the server rejected. The file is removed so
// a restart does not reuse them.
func (m *Manager) Invalidate() {
	if err := m.Logout(); err != nil {
		m.logger.Warn("invalidate credentials", zap.Error(err))
	}
}

// Credentials returns a copy of the current credentials, nil when logged out.
func (m *Manager) Credentials() *Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return nil
	}
	c := *m.creds
	return &c
}

// Authenticated reports whether unexpired credentials are present.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds != nil && !m.creds.Expired(m.now())
}

// Token returns the session cookie value, "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return ""
	}
	return m.creds.Token
}

// inspect fills Subject and ExpiresAt from JWT claims. Opaque tokens are
// left as they are.
func inspect(c *Credentials) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, &claims); err != nil {
		return
	}
	c.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.UTC()
	}
}
