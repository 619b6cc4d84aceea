package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".outpost", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestHomeOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(HomeEnv, tmp)
	if got := ConfigPath(); got != filepath.Join(tmp, "config.toml") {
		t.Errorf("ConfigPath() = %q, want under %s", got, tmp)
	}
}

func TestSessionFiles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"db", DBPath("test"), filepath.Join("sessions", "test", "outpost.db")},
		{"credentials", CredentialsPath("test"), filepath.Join("sessions", "test", "credentials.toml")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "outpostd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.want) {
			t.Errorf("%s path = %q, want suffix %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("permission = %o, want 0700", perm)
	}
}
