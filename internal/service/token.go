package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/pkce"
	"github.com/dtroode/authz-server/internal/token"
)

// TokenResponse is the token endpoint success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope"`
}

// CodeExchange is an authorization_code grant request.
type CodeExchange struct {
	Code         string
	CodeVerifier string
	RedirectURI  string
	Client       ClientAuth
}

// RefreshExchange is a refresh_token grant request. An empty Scope keeps the
// original grant.
type RefreshExchange struct {
	RefreshToken string
	Scope        []string
	Client       ClientAuth
}

// IntrospectionResponse is the RFC 7662 response. Inactive tokens carry no claims.
type IntrospectionResponse struct {
	Active      bool     `json:"active"`
	Scope       string   `json:"scope,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	Username    string   `json:"username,omitempty"`
	TokenType   string   `json:"token_type,omitempty"`
	Exp         int64    `json:"exp,omitempty"`
	Iat         int64    `json:"iat,omitempty"`
	Nbf         int64    `json:"nbf,omitempty"`
	Sub         string   `json:"sub,omitempty"`
	Aud         []string `json:"aud,omitempty"`
	Iss         string   `json:"iss,omitempty"`
	Jti         string   `json:"jti,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// TokenServiceDeps are the stores and collaborators of the token lifecycle.
type TokenServiceDeps struct {
	Clients     *ClientAuthenticator
	Users       model.UserStore
	Scopes      model.ScopeStore
	Codes       model.CodeStore
	Refresh     model.RefreshTokenStore
	Revocations model.RevocationList
	Permissions model.PermissionResolver
	Tokens      *token.JWT
}

// TokenService redeems grants and manages issued credentials.
type TokenService struct {
	clients     *ClientAuthenticator
	users       model.UserStore
	scopes      model.ScopeStore
	codes       model.CodeStore
	refresh     model.RefreshTokenStore
	revocations model.RevocationList
	permissions model.PermissionResolver
	tokens      *token.JWT
	obs         Observer
}

func NewTokenService(deps TokenServiceDeps, obs Observer) *TokenService {
	return &TokenService{
		clients:     deps.Clients,
		users:       deps.Users,
		scopes:      deps.Scopes,
		codes:       deps.Codes,
		refresh:     deps.Refresh,
		revocations: deps.Revocations,
		permissions: deps.Permissions,
		tokens:      deps.Tokens,
		obs:         obs,
	}
}

// ExchangeAuthorizationCode redeems a code. The code is consumed before any
// binding is checked, so a failed PKCE or redirect check burns it.
//
// Parameters:
//   - ctx: The request context
//   - in: The code, verifier, redirect URI and client credentials
//
// Returns the token response, or an error classified for the OAuth error
// vocabulary. Every binding failure is an opaque ErrInvalidGrant.
func (s *TokenService) ExchangeAuthorizationCode(ctx context.Context, in CodeExchange) (TokenResponse, error) {
	if in.Code == "" {
		return TokenResponse{}, model.NewValidationError("code is required")
	}
	client, err := s.clients.Authenticate(ctx, in.Client)
	if err != nil {
		return TokenResponse{}, err
	}

	now := s.obs.now()
	codeHash := token.Hash(in.Code)
	code, err := s.codes.ConsumeCode(ctx, codeHash, now)
	if errors.Is(err, model.ErrNotFound) {
		return TokenResponse{}, s.codeNotRedeemable(ctx, client, codeHash, now)
	}
	if err != nil {
		s.obs.Logger.Error("Token service: failed to consume authorization code",
			"client_id", client.ID,
			"error", err.Error())
		return TokenResponse{}, unavailable("consume code", err)
	}

	if err := checkCodeBinding(code, client, in); err != nil {
		return TokenResponse{}, s.grantFailed(ctx, GrantAuthorizationCode, client.ID, err)
	}

	user, err := s.activeUser(ctx, code.UserID)
	if err != nil {
		return TokenResponse{}, s.grantFailed(ctx, GrantAuthorizationCode, client.ID, err)
	}

	refreshRaw, refreshHash, err := newRefresh()
	if err != nil {
		return TokenResponse{}, err
	}
	rt := model.RefreshToken{
		TokenHash:    refreshHash,
		FamilyID:     refreshHash,
		AuthCodeHash: codeHash,
		UserID:       user.ID,
		ClientID:     client.ID,
		Scope:        code.Scope,
		AuthTime:     code.AuthTime,
		IssuedAt:     now,
		ExpiresAt:    now.Add(client.RefreshTTL()),
	}

	resp, claims, err := s.mintUserTokens(ctx, client, user, code.Scope, code.AuthTime, code.Nonce)
	if err != nil {
		return TokenResponse{}, err
	}
	if err := s.refresh.CreateRefreshToken(ctx, rt); err != nil {
		s.obs.Logger.Error("Token service: failed to store refresh token",
			"client_id", client.ID,
			"error", err.Error())
		return TokenResponse{}, unavailable("create refresh token", err)
	}
	resp.RefreshToken = refreshRaw

	s.obs.Logger.Info("Token service: authorization code exchanged",
		"client_id", client.ID,
		"user_id", user.ID,
		"jti", claims.ID)
	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditCodeExchanged,
		Actor:    user.ID.String(),
		ClientID: client.ID,
		Resource: claims.ID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"scope": resp.Scope},
	})
	s.obs.Metrics.TokenIssued(GrantAuthorizationCode)
	return resp, nil
}

// codeNotRedeemable classifies a failed consume. A replayed code revokes
// every refresh chain minted from it.
func (s *TokenService) codeNotRedeemable(ctx context.Context, client model.Client, codeHash string, now time.Time) error {
	code, err := s.codes.GetCode(ctx, codeHash)
	if err != nil || !code.Used() || code.ClientID != client.ID {
		return s.grantFailed(ctx, GrantAuthorizationCode, client.ID, errors.New("unknown or expired code"))
	}

	revoked, err := s.refresh.RevokeByAuthCode(ctx, codeHash, now)
	if err != nil {
		s.obs.Logger.Error("Token service: failed to revoke tokens of replayed code",
			"client_id", client.ID,
			"error", err.Error())
	}
	s.obs.Logger.Warn("Token service: authorization code reuse detected",
		"client_id", client.ID,
		"user_id", code.UserID,
		"revoked_refresh_tokens", revoked)
	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditCodeReuse,
		Actor:    code.UserID.String(),
		ClientID: client.ID,
		Outcome:  model.OutcomeFailure,
		Details:  map[string]string{"revoked_refresh_tokens": fmt.Sprint(revoked)},
	})
	s.obs.Metrics.ReuseDetected(GrantAuthorizationCode)
	return s.grantFailed(ctx, GrantAuthorizationCode, client.ID, errors.New("code already used"))
}

func checkCodeBinding(code model.AuthorizationCode, client model.Client, in CodeExchange) error {
	if code.ClientID != client.ID {
		return errors.New("code issued to another client")
	}
	if code.RedirectURI != in.RedirectURI {
		return errors.New("redirect_uri mismatch")
	}
	if code.CodeChallenge == "" {
		if in.CodeVerifier != "" {
			return errors.New("code_verifier without code_challenge")
		}
		return nil
	}
	if !pkce.Verify(code.CodeChallenge, code.CodeChallengeMethod, in.CodeVerifier) {
		return errors.New("code_verifier mismatch")
	}
	return nil
}

// ExchangeRefreshToken rotates a refresh token. Presenting a token that was
// already rotated revokes its whole family.
//
// The access token carries the granted scope narrowed to what the user is
// entitled to now. The rotated record keeps the full grant, so a role that
// comes back restores its scopes on the next refresh.
func (s *TokenService) ExchangeRefreshToken(ctx context.Context, in RefreshExchange) (TokenResponse, error) {
	if in.RefreshToken == "" {
		return TokenResponse{}, model.NewValidationError("refresh_token is required")
	}
	client, err := s.clients.Authenticate(ctx, in.Client)
	if err != nil {
		return TokenResponse{}, err
	}

	now := s.obs.now()
	old, err := s.refresh.GetRefreshToken(ctx, token.Hash(in.RefreshToken))
	if errors.Is(err, model.ErrNotFound) {
		return TokenResponse{}, s.grantFailed(ctx, GrantRefreshToken, client.ID, errors.New("unknown refresh token"))
	}
	if err != nil {
		s.obs.Logger.Error("Token service: failed to get refresh token",
			"client_id", client.ID,
			"error", err.Error())
		return TokenResponse{}, unavailable("get refresh token", err)
	}

	if old.ClientID != client.ID {
		return TokenResponse{}, s.grantFailed(ctx, GrantRefreshToken, client.ID, errors.New("refresh token issued to another client"))
	}
	if old.Revoked() {
		return TokenResponse{}, s.refreshReuse(ctx, old, now)
	}
	if old.Expired(now) {
		return TokenResponse{}, s.grantFailed(ctx, GrantRefreshToken, client.ID, errors.New("refresh token expired"))
	}

	scope := old.Scope
	if len(in.Scope) > 0 {
		if !model.IsSubset(in.Scope, old.Scope) {
			return TokenResponse{}, model.NewError(model.ErrInvalidScope, "requested scope exceeds the original grant", nil)
		}
		scope = in.Scope
	}

	user, err := s.activeUser(ctx, old.UserID)
	if err != nil {
		return TokenResponse{}, s.grantFailed(ctx, GrantRefreshToken, client.ID, err)
	}

	entitled, err := entitledScopes(ctx, s.permissions, s.scopes, user.ID, scope)
	if err != nil {
		s.obs.Logger.Info("Token service: refresh scope no longer entitled",
			"client_id", client.ID,
			"user_id", user.ID,
			"error", err.Error())
		return TokenResponse{}, err
	}
	if len(entitled) < len(scope) {
		s.obs.Logger.Info("Token service: refresh scope narrowed to current entitlements",
			"client_id", client.ID,
			"user_id", user.ID,
			"granted", model.JoinScope(scope),
			"entitled", model.JoinScope(entitled))
	}
	scope = entitled

	refreshRaw, refreshHash, err := newRefresh()
	if err != nil {
		return TokenResponse{}, err
	}
	parent := old.TokenHash
	next := model.RefreshToken{
		TokenHash:    refreshHash,
		ParentHash:   &parent,
		FamilyID:     old.FamilyID,
		AuthCodeHash: old.AuthCodeHash,
		UserID:       old.UserID,
		ClientID:     old.ClientID,
		Scope:        old.Scope,
		AuthTime:     old.AuthTime,
		IssuedAt:     now,
		ExpiresAt:    now.Add(client.RefreshTTL()),
	}

	// Tokens are signed before the rotation commits and discarded if it loses.
	resp, claims, err := s.mintUserTokens(ctx, client, user, scope, old.AuthTime, "")
	if err != nil {
		return TokenResponse{}, err
	}

	err = s.refresh.RotateRefreshToken(ctx, old.TokenHash, next, now)
	if errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrNotFound) {
		return TokenResponse{}, s.refreshReuse(ctx, old, now)
	}
	if err != nil {
		s.obs.Logger.Error("Token service: failed to rotate refresh token",
			"client_id", client.ID,
			"error", err.Error())
		return TokenResponse{}, unavailable("rotate refresh token", err)
	}
	resp.RefreshToken = refreshRaw

	s.obs.Logger.Info("Token service: refresh token rotated",
		"client_id", client.ID,
		"user_id", user.ID,
		"family_id", old.FamilyID)
	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditTokenRefreshed,
		Actor:    user.ID.String(),
		ClientID: client.ID,
		Resource: claims.ID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"scope": resp.Scope},
	})
	s.obs.Metrics.TokenIssued(GrantRefreshToken)
	return resp, nil
}

func (s *TokenService) refreshReuse(ctx context.Context, old model.RefreshToken, now time.Time) error {
	revoked, err := s.refresh.RevokeFamily(ctx, old.FamilyID, now)
	if err != nil {
		s.obs.Logger.Error("Token service: failed to revoke refresh token family",
			"client_id", old.ClientID,
			"family_id", old.FamilyID,
			"error", err.Error())
		return unavailable("revoke refresh family", err)
	}

	s.obs.Logger.Warn("Token service: refresh token reuse detected",
		"client_id", old.ClientID,
		"user_id", old.UserID,
		"family_id", old.FamilyID,
		"revoked", revoked)
	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditRefreshReuse,
		Actor:    old.UserID.String(),
		ClientID: old.ClientID,
		Resource: old.FamilyID,
		Outcome:  model.OutcomeFailure,
		Details:  map[string]string{"revoked_refresh_tokens": fmt.Sprint(revoked)},
	})
	s.obs.Metrics.ReuseDetected(GrantRefreshToken)
	return s.grantFailed(ctx, GrantRefreshToken, old.ClientID, errors.New("refresh token reuse"))
}

// ClientCredentials issues a token to a confidential client acting on its own behalf.
func (s *TokenService) ClientCredentials(ctx context.Context, auth ClientAuth, scope []string) (TokenResponse, error) {
	client, err := s.clients.Authenticate(ctx, auth)
	if err != nil {
		return TokenResponse{}, err
	}
	if !client.IsConfidential() {
		return TokenResponse{}, model.NewError(model.ErrUnauthorizedClient, "public clients may not use client_credentials", nil)
	}

	if len(scope) == 0 {
		scope = slices.DeleteFunc(slices.Clone(client.AllowedScopes), model.IsIdentityScope)
	}
	if slices.ContainsFunc(scope, model.IsIdentityScope) {
		return TokenResponse{}, model.NewError(model.ErrInvalidScope, "identity scopes require a user", nil)
	}
	if len(scope) == 0 || !model.IsSubset(scope, client.AllowedScopes) {
		return TokenResponse{}, model.NewError(model.ErrInvalidScope, "requested scope exceeds the scope allowed for this client", nil)
	}

	ttl := client.AccessTTL()
	raw, claims, err := s.tokens.GenerateAccessToken(token.AccessParams{
		Subject:  client.ID,
		ClientID: client.ID,
		Scope:    scope,
		TTL:      ttl,
	})
	if err != nil {
		s.obs.Logger.Error("Token service: failed to sign access token",
			"client_id", client.ID,
			"error", err.Error())
		return TokenResponse{}, err
	}

	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditTokenIssued,
		Actor:    client.ID,
		ClientID: client.ID,
		Resource: claims.ID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"grant_type": GrantClientCredentials, "scope": claims.Scope},
	})
	s.obs.Metrics.TokenIssued(GrantClientCredentials)
	return TokenResponse{
		AccessToken: raw,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl / time.Second),
		Scope:       claims.Scope,
	}, nil
}

// Verify validates an access token against the current and previous signing
// keys and the revocation list.
func (s *TokenService) Verify(ctx context.Context, raw string) (*token.AccessClaims, error) {
	claims, err := s.tokens.ParseAccessToken(raw)
	if err != nil {
		return nil, model.NewError(model.ErrInvalidToken, "", err)
	}

	revoked, err := s.revocations.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.obs.Logger.Error("Token service: failed to check revocation list",
			"jti", claims.ID,
			"error", err.Error())
		return nil, unavailable("check revocation", err)
	}
	if revoked {
		return nil, model.NewError(model.ErrInvalidToken, "", errors.New("token revoked"))
	}
	return claims, nil
}

// Introspect never fails: anything that is not a currently valid token is inactive.
func (s *TokenService) Introspect(ctx context.Context, raw, hint string) IntrospectionResponse {
	if raw == "" {
		return IntrospectionResponse{}
	}
	lookups := []func(context.Context, string) (IntrospectionResponse, bool){s.introspectAccess, s.introspectRefresh}
	if hint == HintRefreshToken {
		slices.Reverse(lookups)
	}
	for _, lookup := range lookups {
		if resp, ok := lookup(ctx, raw); ok {
			return resp
		}
	}
	return IntrospectionResponse{}
}

func (s *TokenService) introspectAccess(ctx context.Context, raw string) (IntrospectionResponse, bool) {
	claims, err := s.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, model.ErrUnavailable) {
			s.obs.Logger.Warn("Token service: introspection degraded to inactive",
				"error", err.Error())
		}
		return IntrospectionResponse{}, false
	}

	resp := IntrospectionResponse{
		Active:      true,
		Scope:       claims.Scope,
		ClientID:    claims.ClientID,
		TokenType:   HintAccessToken,
		Sub:         claims.Subject,
		Aud:         claims.Audience,
		Iss:         claims.Issuer,
		Jti:         claims.ID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		resp.Nbf = claims.NotBefore.Unix()
	}
	if userID, err := uuid.Parse(claims.Subject); err == nil {
		if user, err := s.users.GetByID(ctx, userID); err == nil {
			resp.Username = user.Username
		}
	}
	return resp, true
}

func (s *TokenService) introspectRefresh(ctx context.Context, raw string) (IntrospectionResponse, bool) {
	rt, err := s.refresh.GetRefreshToken(ctx, token.Hash(raw))
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.obs.Logger.Warn("Token service: introspection degraded to inactive",
				"error", err.Error())
		}
		return IntrospectionResponse{}, false
	}
	if rt.Revoked() || rt.Expired(s.obs.now()) {
		return IntrospectionResponse{}, false
	}
	return IntrospectionResponse{
		Active:    true,
		Scope:     model.JoinScope(rt.Scope),
		ClientID:  rt.ClientID,
		TokenType: HintRefreshToken,
		Sub:       rt.UserID.String(),
		Iss:       s.tokens.Issuer(),
		Exp:       rt.ExpiresAt.Unix(),
		Iat:       rt.IssuedAt.Unix(),
	}, true
}

// Revoke invalidates a token. Unknown, expired and foreign tokens are
// ignored. A nil client skips the ownership check.
func (s *TokenService) Revoke(ctx context.Context, raw, hint string, auth *ClientAuth) error {
	var clientID string
	if auth != nil {
		client, err := s.clients.Authenticate(ctx, *auth)
		if err != nil {
			return err
		}
		clientID = client.ID
	}
	if raw == "" {
		return model.NewValidationError("token is required")
	}

	revokers := []func(context.Context, string, string) (bool, error){s.revokeAccess, s.revokeRefresh}
	if hint == HintRefreshToken {
		slices.Reverse(revokers)
	}
	for _, revoke := range revokers {
		done, err := revoke(ctx, raw, clientID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}

func (s *TokenService) revokeAccess(ctx context.Context, raw, clientID string) (bool, error) {
	claims, err := s.tokens.ParseAccessToken(raw)
	if err != nil {
		return false, nil
	}
	if clientID != "" && claims.ClientID != clientID {
		return true, nil
	}

	now := s.obs.now()
	entry := model.RevokedAccessToken{
		JTI:       claims.ID,
		RevokedAt: now,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.revocations.RevokeAccessToken(ctx, entry); err != nil {
		s.obs.Logger.Error("Token service: failed to revoke access token",
			"jti", claims.ID,
			"error", err.Error())
		return false, unavailable("revoke access token", err)
	}

	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditTokenRevoked,
		Actor:    claims.Subject,
		ClientID: claims.ClientID,
		Resource: claims.ID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"token_type": HintAccessToken},
	})
	return true, nil
}

func (s *TokenService) revokeRefresh(ctx context.Context, raw, clientID string) (bool, error) {
	rt, err := s.refresh.GetRefreshToken(ctx, token.Hash(raw))
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("get refresh token", err)
	}
	if clientID != "" && rt.ClientID != clientID {
		return true, nil
	}

	revoked, err := s.refresh.RevokeFamily(ctx, rt.FamilyID, s.obs.now())
	if err != nil {
		s.obs.Logger.Error("Token service: failed to revoke refresh token family",
			"family_id", rt.FamilyID,
			"error", err.Error())
		return false, unavailable("revoke refresh family", err)
	}

	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditTokenRevoked,
		Actor:    rt.UserID.String(),
		ClientID: rt.ClientID,
		Resource: rt.FamilyID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"token_type": HintRefreshToken, "revoked": fmt.Sprint(revoked)},
	})
	return true, nil
}

// mintUserTokens signs the access token, and the identity token when openid
// was granted, with permissions resolved at mint time.
func (s *TokenService) mintUserTokens(ctx context.Context, client model.Client, user model.User, scope []string, authTime time.Time, nonce string) (TokenResponse, *token.AccessClaims, error) {
	perms, err := s.permissions.Resolve(ctx, user.ID)
	if err != nil {
		return TokenResponse{}, nil, unavailable("resolve permissions", err)
	}

	ttl := client.AccessTTL()
	access, claims, err := s.tokens.GenerateAccessToken(token.AccessParams{
		Subject:     user.ID.String(),
		ClientID:    client.ID,
		Scope:       scope,
		Roles:       perms.Roles,
		Permissions: perms.Permissions,
		TTL:         ttl,
	})
	if err != nil {
		s.obs.Logger.Error("Token service: failed to sign access token",
			"client_id", client.ID,
			"error", err.Error())
		return TokenResponse{}, nil, err
	}

	resp := TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl / time.Second),
		Scope:       claims.Scope,
	}
	if slices.Contains(scope, model.ScopeOpenID) {
		resp.IDToken, err = s.tokens.GenerateIDToken(token.IDParams{
			User:        &user,
			Subject:     user.ID.String(),
			ClientID:    client.ID,
			Nonce:       nonce,
			AuthTime:    authTime,
			Scope:       scope,
			AccessToken: access,
		})
		if err != nil {
			s.obs.Logger.Error("Token service: failed to sign id token",
				"client_id", client.ID,
				"error", err.Error())
			return TokenResponse{}, nil, err
		}
	}
	return resp, claims, nil
}

func (s *TokenService) activeUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, errors.New("user no longer exists")
	}
	if err != nil {
		return model.User{}, unavailable("get user", err)
	}
	if !user.Active {
		return model.User{}, errors.New("user is inactive")
	}
	return user, nil
}

// grantFailed turns err into an opaque invalid_grant unless it is an outage.
func (s *TokenService) grantFailed(ctx context.Context, grant, clientID string, err error) error {
	if errors.Is(err, model.ErrUnavailable) {
		return err
	}
	s.obs.Logger.Info("Token service: grant rejected",
		"grant_type", grant,
		"client_id", clientID,
		"reason", err.Error())
	s.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditGrantFailed,
		ClientID: clientID,
		Outcome:  model.OutcomeFailure,
		Reason:   reason(err),
		Details:  map[string]string{"grant_type": grant},
	})
	return model.NewInvalidGrant(err)
}

func newRefresh() (raw, hash string, err error) {
	raw, err = token.NewOpaque()
	if err != nil {
		return "", "", err
	}
	return raw, token.Hash(raw), nil
}
