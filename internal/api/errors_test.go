package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/remote"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/store"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"not found", fmt.Errorf("wrap: %w", store.ErrNotFound), codes.NotFound},
		{"unknown notification", notify.ErrUnknown, codes.NotFound},
		{"empty content", outbox.ErrEmptyContent, codes.InvalidArgument},
		{"no conversation", outbox.ErrNoConversation, codes.InvalidArgument},
		{"empty token", session.ErrEmptyToken, codes.InvalidArgument},
		{"expired token", session.ErrExpired, codes.InvalidArgument},
		{"bad transition", outbox.ErrInvalidTransition, codes.FailedPrecondition},
		{"offline", outbox.ErrOffline, codes.Unavailable},
		{"server 401", &remote.StatusError{Code: 401}, codes.Unauthenticated},
		{"server 503", fmt.Errorf("fetch: %w", &remote.StatusError{Code: 503}), codes.Unavailable},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := grpcstatus.Code(toStatus("op", tt.err))
			if got != tt.want {
				t.Errorf("toStatus(%v) code = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{}
	data, err := c.Marshal(&SendRequest{ConversationID: "c1", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"conversationId":"c1","content":"hi"}` {
		t.Errorf("Marshal = %s", data)
	}
	var out SendRequest
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ConversationID != "c1" || c.Name() != CodecName {
		t.Errorf("Unmarshal = %+v, name %q", out, c.Name())
	}
}
