package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/matheus3301/outpost/internal/bus"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newManager(t *testing.T) (*Manager, *bus.Bus, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.toml")
	b := bus.New()
	return NewManager(path, b, zap.NewNop()), b, path
}

func TestLoginPersistsCredentials(t *testing.T) {
	m, b, path := newManager(t)
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	tok := signedToken(t, "user-42", time.Now().Add(time.Hour))
	c, err := m.Login(tok)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if c.Subject != "user-42" {
		t.Errorf("Subject = %q, want user-42", c.Subject)
	}
	if !m.Authenticated() || m.Token() != tok {
		t.Error("manager should be authenticated with the new token")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials permission = %o, want 0600", perm)
	}

	evt := <-ch
	if evt.Kind != bus.SessionAuthenticated {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.SessionAuthenticated)
	}

	// A fresh manager restores the same credentials.
	m2 := NewManager(path, bus.New(), zap.NewNop())
	if err := m2.Load(); err != nil {
		t.Fatal(err)
	}
	if m2.Token() != tok {
		t.Error("Load() did not restore the token")
	}
}

func TestLoginOpaqueToken(t *testing.T) {
	m, _, _ := newManager(t)
	c, err := m.Login("  abc123  ")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if c.Token != "abc123" || !c.ExpiresAt.IsZero() {
		t.Errorf("credentials = %+v, want trimmed opaque token without expiry", c)
	}
}

func TestLoginRejects(t *testing.T) {
	m, _, _ := newManager(t)
	if _, err := m.Login(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Login(\"\") error = %v, want ErrEmptyToken", err)
	}
	expired := signedToken(t, "u", time.Now().Add(-time.Minute))
	if _, err := m.Login(expired); !errors.Is(err, ErrExpired) {
		t.Errorf("Login(expired) error = %v, want ErrExpired", err)
	}
	if m.Authenticated() {
		t.Error("rejected logins must not authenticate")
	}
}

func TestLogout(t *testing.T) {
	m, b, path := newManager(t)
	if _, err := m.Login("abc"); err != nil {
		t.Fatal(err)
	}
	ch, unsub := b.Subscribe(bus.SessionLoggedOut, 10)
	defer unsub()

	if err := m.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if m.Authenticated() || m.Token() != "" {
		t.Error("manager still authenticated after logout")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("credentials file still present: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no session.logged_out event")
	}

	// Logging out twice is harmless.
	if err := m.Logout(); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	m, _, _ := newManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Credentials() != nil {
		t.Error("Credentials() should be nil without a file")
	}
}

func TestExpiredAfterLoad(t *testing.T) {
	m, _, path := newManager(t)
	if err := SaveCredentials(path, &Credentials{Token: "x", ExpiresAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if m.Authenticated() {
		t.Error("expired credentials must not authenticate")
	}
}
