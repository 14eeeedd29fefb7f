package handler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/authz-server/internal/model"
)

func TestHandleError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       error
		wantCode codes.Code
		wantMsg  string
	}{
		{
			name:     "status passthrough",
			in:       status.Error(codes.PermissionDenied, "nope"),
			wantCode: codes.PermissionDenied,
			wantMsg:  "nope",
		},
		{
			name:     "validation keeps its description",
			in:       model.NewValidationError("empty permission name"),
			wantCode: codes.InvalidArgument,
			wantMsg:  "empty permission name",
		},
		{
			name:     "wrapped not found",
			in:       fmt.Errorf("failed to assign role: %w", model.ErrNotFound),
			wantCode: codes.NotFound,
			wantMsg:  "not found",
		},
		{
			name:     "conflict",
			in:       model.ErrConflict,
			wantCode: codes.AlreadyExists,
			wantMsg:  "already exists",
		},
		{
			name:     "unavailable hides the cause",
			in:       model.NewUnavailable(errors.New("dial tcp 10.0.0.1:5432")),
			wantCode: codes.Unavailable,
			wantMsg:  "The service is temporarily unavailable",
		},
		{
			name:     "other -> Internal",
			in:       errors.New("boom"),
			wantCode: codes.Internal,
			wantMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := handleError(tt.in)
			st, ok := status.FromError(err)
			assert.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
			assert.Equal(t, tt.wantMsg, st.Message())
		})
	}
}
