package handler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
)

// DirectoryService changes role assignments and consents.
type DirectoryService interface {
	AssignRole(ctx context.Context, a model.RoleAssignment) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error
	RevokeConsent(ctx context.Context, userID uuid.UUID, clientID string) error
}

// Directory serves oauth.v1.Directory. Every call requires the admin permission.
type Directory struct {
	directory      DirectoryService
	contextManager model.ContextManager
	logger         *logger.Logger
}

var _ DirectoryServer = (*Directory)(nil)

// NewDirectory creates a new Directory handler.
func NewDirectory(directory DirectoryService, contextManager model.ContextManager, logger *logger.Logger) *Directory {
	return &Directory{directory: directory, contextManager: contextManager, logger: logger}
}

// AssignRole grants a role. Fields: user_id, role_id, optional starts_at and
// expires_at in RFC 3339.
func (h *Directory) AssignRole(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	caller, err := h.admin(ctx)
	if err != nil {
		return nil, err
	}

	a := model.RoleAssignment{}
	if a.UserID, err = uuidField(req, "user_id"); err != nil {
		return nil, err
	}
	if a.RoleID, err = uuidField(req, "role_id"); err != nil {
		return nil, err
	}
	if a.StartsAt, err = timeField(req, "starts_at"); err != nil {
		return nil, err
	}
	if a.ExpiresAt, err = timeField(req, "expires_at"); err != nil {
		return nil, err
	}

	if err := h.directory.AssignRole(ctx, a); err != nil {
		return nil, handleError(err)
	}
	h.logger.Info("Directory handler: role assigned",
		"caller", caller.Subject,
		"user_id", a.UserID,
		"role_id", a.RoleID)
	return &emptypb.Empty{}, nil
}

// RevokeRole withdraws a role. Fields: user_id, role_id.
func (h *Directory) RevokeRole(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	caller, err := h.admin(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := uuidField(req, "user_id")
	if err != nil {
		return nil, err
	}
	roleID, err := uuidField(req, "role_id")
	if err != nil {
		return nil, err
	}

	if err := h.directory.RevokeRole(ctx, userID, roleID); err != nil {
		return nil, handleError(err)
	}
	h.logger.Info("Directory handler: role revoked",
		"caller", caller.Subject,
		"user_id", userID,
		"role_id", roleID)
	return &emptypb.Empty{}, nil
}

// SetRolePermissions replaces a role's permissions. Fields: role_id, permissions.
func (h *Directory) SetRolePermissions(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	caller, err := h.admin(ctx)
	if err != nil {
		return nil, err
	}
	roleID, err := uuidField(req, "role_id")
	if err != nil {
		return nil, err
	}

	var permissions []string
	for _, v := range req.GetFields()["permissions"].GetListValue().GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "permissions must be strings")
		}
		permissions = append(permissions, s.StringValue)
	}

	if err := h.directory.SetRolePermissions(ctx, roleID, permissions); err != nil {
		return nil, handleError(err)
	}
	h.logger.Info("Directory handler: role permissions replaced",
		"caller", caller.Subject,
		"role_id", roleID,
		"permissions", len(permissions))
	return &emptypb.Empty{}, nil
}

// RevokeConsent withdraws a consent. Fields: user_id, client_id.
func (h *Directory) RevokeConsent(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	caller, err := h.admin(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := uuidField(req, "user_id")
	if err != nil {
		return nil, err
	}
	clientID := req.GetFields()["client_id"].GetStringValue()
	if clientID == "" {
		return nil, status.Error(codes.InvalidArgument, "client_id is required")
	}

	if err := h.directory.RevokeConsent(ctx, userID, clientID); err != nil {
		return nil, handleError(err)
	}
	h.logger.Info("Directory handler: consent revoked",
		"caller", caller.Subject,
		"user_id", userID,
		"client_id", clientID)
	return &emptypb.Empty{}, nil
}

func (h *Directory) admin(ctx context.Context) (model.Principal, error) {
	caller, ok := h.contextManager.GetPrincipalFromContext(ctx)
	if !ok {
		return model.Principal{}, status.Error(codes.Unauthenticated, "missing caller")
	}
	if !slices.Contains(caller.Permissions, model.PermissionAdmin) {
		h.logger.Warn("Directory handler: caller lacks admin permission", "caller", caller.Subject)
		return model.Principal{}, status.Error(codes.PermissionDenied, "permission denied")
	}
	return caller, nil
}

func uuidField(req *structpb.Struct, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(req.GetFields()[name].GetStringValue())
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

func timeField(req *structpb.Struct, name string) (*time.Time, error) {
	raw := req.GetFields()[name].GetStringValue()
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be an RFC 3339 timestamp", name))
	}
	return &t, nil
}
