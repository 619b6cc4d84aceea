package session

import (
	"os"

	"github.com/matheus3301/outpost/internal/config"
)

const (
	DefaultSessionName = "main"

	// SessionEnv picks the session when no flag is given.
	SessionEnv = "OUTPOST_SESSION"
)

// Resolve picks the session name: the --session flag, then $OUTPOST_SESSION,
// then default_session from config.toml (itself overridable with
// OUTPOST_DEFAULT_SESSION), then "main". An unreadable config falls
// through to the default.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(SessionEnv); name != "" {
		return name
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
