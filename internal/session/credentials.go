package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Credentials is the persisted session cookie of an authenticated user.
type Credentials struct {
	Token     string    `toml:"token"`
	Subject   string    `toml:"subject,omitempty"`
	ExpiresAt time.Time `toml:"expires_at,omitempty"`
	SavedAt   time.Time `toml:"saved_at"`
}

// Expired reports whether the token carries an expiry that has passed.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// LoadCredentials reads the credentials file. Returns nil, nil when absent.
func LoadCredentials(path string) (*Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if c.Token == "" {
		return nil, nil
	}
	return &c, nil
}

// SaveCredentials writes the credentials file with 0600 permissions.
func SaveCredentials(path string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(c)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// DeleteCredentials removes the credentials file if present.
func DeleteCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
