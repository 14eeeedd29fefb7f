package middleware

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authz-server/internal/logger"
)

// RecoveryHandler turns a panic inside a handler into an Internal status.
func RecoveryHandler(logger *logger.Logger) func(p any) error {
	return func(p any) error {
		logger.Error("gRPC handler panicked", "panic", p)
		return status.Error(codes.Internal, "internal server error")
	}
}
