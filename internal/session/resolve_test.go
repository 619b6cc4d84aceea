package session

import (
	"os"
	"testing"

	"github.com/matheus3301/outpost/internal/config"
)

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv(SessionEnv, "")
	// An empty but set variable would still override the file.
	t.Setenv("OUTPOST_DEFAULT_SESSION", "")
	os.Unsetenv("OUTPOST_DEFAULT_SESSION")

	if got := Resolve(""); got != DefaultSessionName {
		t.Fatalf("no config: got %q, want %q", got, DefaultSessionName)
	}

	cfg := config.Default()
	cfg.DefaultSession = "work"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Fatalf("config: got %q, want work", got)
	}

	t.Setenv(SessionEnv, "travel")
	if got := Resolve(""); got != "travel" {
		t.Fatalf("env: got %q, want travel", got)
	}
	if got := Resolve("flag"); got != "flag" {
		t.Fatalf("flag: got %q, want flag", got)
	}
}
