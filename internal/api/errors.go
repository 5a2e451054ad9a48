package api

import (
	"context"
	"errors"

	"github.com/matheus3301/achat/internal/history"
	"github.com/matheus3301/achat/internal/identity"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/transport"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, store.ErrDuplicateChat):
		code = codes.Aborted
	case errors.Is(err, identity.ErrSelfChat),
		errors.Is(err, identity.ErrEmptyUserID),
		errors.Is(err, history.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, session.ErrNoUser):
		code = codes.FailedPrecondition
	case errors.Is(err, transport.ErrNotConnected):
		code = codes.Unavailable
	case errors.Is(err, transport.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
