package handler

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dtroode/authz-server/internal/logger"
	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/service"
)

// Introspector answers token introspection requests.
type Introspector interface {
	Introspect(ctx context.Context, raw, hint string) service.IntrospectionResponse
}

// Verifier serves oauth.v1.TokenVerifier for internal resource servers.
type Verifier struct {
	tokens         Introspector
	permissions    model.PermissionResolver
	contextManager model.ContextManager
	logger         *logger.Logger
}

var _ TokenVerifierServer = (*Verifier)(nil)

// NewVerifier creates a new Verifier handler.
func NewVerifier(tokens Introspector, permissions model.PermissionResolver, contextManager model.ContextManager, logger *logger.Logger) *Verifier {
	return &Verifier{
		tokens:         tokens,
		permissions:    permissions,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Introspect reports the state of a token. Failures answer active=false.
func (h *Verifier) Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	resp := h.tokens.Introspect(ctx, req.GetValue(), "")

	out, err := toStruct(resp)
	if err != nil {
		h.logger.Error("Verifier handler: failed to encode introspection", "error", err.Error())
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

// ResolvePermissions returns the effective roles and permissions of a user.
// Service callers may resolve any user; a user token may only resolve itself
// unless it carries the admin permission.
func (h *Verifier) ResolvePermissions(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	caller, ok := h.contextManager.GetPrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing caller")
	}

	subject := req.GetValue()
	if subject == "" {
		subject = caller.Subject
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "user id must be a UUID")
	}

	isService := caller.Subject == caller.ClientID
	if !isService && subject != caller.Subject && !slices.Contains(caller.Permissions, model.PermissionAdmin) {
		h.logger.Warn("Verifier handler: permission lookup for another user refused",
			"caller", caller.Subject,
			"user_id", userID)
		return nil, status.Error(codes.PermissionDenied, "permission denied")
	}

	set, err := h.permissions.Resolve(ctx, userID)
	if err != nil {
		h.logger.Error("Verifier handler: failed to resolve permissions",
			"user_id", userID,
			"error", err.Error())
		return nil, handleError(err)
	}

	return structpb.NewStruct(map[string]any{
		"user_id":     userID.String(),
		"roles":       anySlice(set.Roles),
		"permissions": anySlice(set.Permissions),
	})
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
