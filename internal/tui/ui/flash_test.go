package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestFlashExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	assert.Nil(t, f.Current())
	f.Info("queued")
	require.NotNil(t, f.Current())
	assert.Equal(t, "queued", f.Current().Text)

	now = now.Add(6 * time.Second)
	assert.Nil(t, f.Current())
}

func TestFlashErrLevels(t *testing.T) {
	f := NewFlashModel()

	f.Err(grpcstatus.Error(codes.Unavailable, "offline"))
	require.NotNil(t, f.Current())
	assert.Equal(t, FlashWarn, f.Current().Level)
	assert.Equal(t, "offline", f.Current().Text)

	f.Err(grpcstatus.Error(codes.NotFound, "entry 7 not found"))
	assert.Equal(t, FlashErr, f.Current().Level)
	assert.Equal(t, "entry 7 not found", f.Current().Text)

	f.Err(errors.New("plain"))
	assert.Equal(t, "plain", f.Current().Text)

	f.Err(nil)
	assert.Equal(t, "plain", f.Current().Text)
}
