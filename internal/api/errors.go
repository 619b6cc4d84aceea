package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/outpost/internal/notify"
	"github.com/matheus3301/outpost/internal/outbox"
	"github.com/matheus3301/outpost/internal/remote"
	"github.com/matheus3301/outpost/internal/session"
	"github.com/matheus3301/outpost/internal/store"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *remote.StatusError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, notify.ErrUnknown):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, outbox.ErrEmptyContent), errors.Is(err, outbox.ErrNoConversation),
		errors.Is(err, session.ErrEmptyToken), errors.Is(err, session.ErrExpired):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, outbox.ErrInvalidTransition):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, outbox.ErrOffline):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.As(err, &se) && se.Code == http.StatusUnauthorized:
		return grpcstatus.Errorf(codes.Unauthenticated, "%s: %v", op, err)
	case errors.As(err, &se):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return grpcstatus.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
