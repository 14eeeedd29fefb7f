package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authz-server/internal/model"
)

func handleError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidScope):
		return status.Error(codes.InvalidArgument, model.Description(err))
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, model.ErrConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, model.ErrUnavailable):
		return status.Error(codes.Unavailable, model.Description(err))
	case errors.Is(err, model.ErrInvalidToken), errors.Is(err, model.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, model.Description(err))
	case errors.Is(err, model.ErrAccessDenied), errors.Is(err, model.ErrInsufficientScope):
		return status.Error(codes.PermissionDenied, "permission denied")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
