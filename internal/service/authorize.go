package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/pkce"
	"github.com/dtroode/authz-server/internal/token"
)

// AuthorizeState is where an authorization request ended up.
type AuthorizeState string

const (
	// StateLoginRequired suspends the flow at the login collaborator.
	StateLoginRequired AuthorizeState = "login_required"
	// StateConsentRequired suspends the flow at the consent collaborator.
	StateConsentRequired AuthorizeState = "consent_required"
	// StateCodeIssued redirects to the client with a code.
	StateCodeIssued AuthorizeState = "code_issued"
	// StateDenied redirects to the client with access_denied.
	StateDenied AuthorizeState = "denied"
	// StateError redirects to the client with an OAuth error.
	StateError AuthorizeState = "error"
)

// AuthorizeResult is the outcome of one step of the state machine. Every
// state carries the URL the user agent is sent to next.
type AuthorizeResult struct {
	State       AuthorizeState
	RedirectURL string
	// Consent is set for StateConsentRequired.
	Consent *ConsentContext
	// Err is the classified error already encoded into RedirectURL for StateError.
	Err error
}

// AuthorizerConfig holds the flow parameters.
type AuthorizerConfig struct {
	AuthorizePath string
	LoginURL      string
	ConsentURL    string
	CodeTTL       time.Duration
	Lockout       LockoutPolicy
}

// LockoutPolicy locks an account after Threshold failures inside Window for Duration.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

// AuthorizerDeps are the stores and collaborators of the state machine.
type AuthorizerDeps struct {
	Clients     model.ClientStore
	Users       model.UserStore
	Scopes      model.ScopeStore
	Consents    model.ConsentStore
	Codes       model.CodeStore
	Attempts    model.LoginAttemptStore
	Permissions model.PermissionResolver
	Tokens      *token.JWT
}

// Authorizer drives authorize → login → consent → code.
type Authorizer struct {
	clients     model.ClientStore
	users       model.UserStore
	scopes      model.ScopeStore
	consents    model.ConsentStore
	codes       model.CodeStore
	attempts    model.LoginAttemptStore
	permissions model.PermissionResolver
	tokens      *token.JWT
	cfg         AuthorizerConfig
	obs         Observer
}

// NewAuthorizer creates the state machine. Zero config fields get defaults.
func NewAuthorizer(deps AuthorizerDeps, cfg AuthorizerConfig, obs Observer) *Authorizer {
	if cfg.AuthorizePath == "" {
		cfg.AuthorizePath = "/oauth/authorize"
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = "/login"
	}
	if cfg.ConsentURL == "" {
		cfg.ConsentURL = "/consent"
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = model.DefaultCodeTTL
	}
	if cfg.Lockout.Threshold <= 0 {
		cfg.Lockout.Threshold = 5
	}
	if cfg.Lockout.Window <= 0 {
		cfg.Lockout.Window = 15 * time.Minute
	}
	if cfg.Lockout.Duration <= 0 {
		cfg.Lockout.Duration = 15 * time.Minute
	}

	return &Authorizer{
		clients:     deps.Clients,
		users:       deps.Users,
		scopes:      deps.Scopes,
		consents:    deps.Consents,
		codes:       deps.Codes,
		attempts:    deps.Attempts,
		permissions: deps.Permissions,
		tokens:      deps.Tokens,
		cfg:         cfg,
		obs:         obs,
	}
}

// Authorize starts or resumes the flow for req. Errors that cannot be sent
// back to a verified redirect URI are returned as error. Every other outcome,
// including protocol errors, is a redirect in the result.
//
// Parameters:
//   - ctx: The request context
//   - req: The parsed authorize request
//   - session: The session token from the browser cookie, or empty
//
// Returns the next step of the flow, or an error for an unknown client or an
// unregistered redirect URI.
func (a *Authorizer) Authorize(ctx context.Context, req model.AuthorizationRequest, session string) (AuthorizeResult, error) {
	client, err := a.validateClient(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		return AuthorizeResult{}, err
	}
	if err := validateRequest(client, req); err != nil {
		return a.errorRedirect(ctx, req, err), nil
	}

	userID, authTime, err := a.sessionUser(ctx, session)
	if errors.Is(err, model.ErrUnauthenticated) {
		return a.loginRequired(req), nil
	}
	if err != nil {
		return a.errorRedirect(ctx, req, err), nil
	}

	return a.decide(ctx, client, userID, authTime, req), nil
}

// decide issues a code or suspends for consent once the user is known.
func (a *Authorizer) decide(ctx context.Context, client model.Client, userID uuid.UUID, authTime time.Time, req model.AuthorizationRequest) AuthorizeResult {
	scopes, err := a.entitledScopes(ctx, userID, req.Scope)
	if err != nil {
		return a.errorRedirect(ctx, req, err)
	}

	if client.RequireConsent {
		grant, err := a.consents.GetConsent(ctx, userID, client.ID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			a.obs.Logger.Error("Authorizer: failed to get consent",
				"client_id", client.ID,
				"user_id", userID,
				"error", err.Error())
			return a.errorRedirect(ctx, req, unavailable("get consent", err))
		}
		if !grant.Covers(scopes) {
			return a.consentRequired(ctx, client, userID, req, scopes)
		}
	}

	return a.issueCode(ctx, client, userID, authTime, req, scopes)
}

func (a *Authorizer) loginRequired(req model.AuthorizationRequest) AuthorizeResult {
	query := req.RawQuery
	if query == "" {
		query = RequestQuery(req).Encode()
	}
	continuation := a.cfg.AuthorizePath + "?" + query
	a.obs.Metrics.AuthorizeOutcome(string(StateLoginRequired))
	return AuthorizeResult{
		State:       StateLoginRequired,
		RedirectURL: withQuery(a.cfg.LoginURL, url.Values{"redirect": {continuation}}),
	}
}

func (a *Authorizer) consentRequired(ctx context.Context, client model.Client, userID uuid.UUID, req model.AuthorizationRequest, scopes []string) AuthorizeResult {
	challenge, err := a.tokens.GenerateConsentChallenge(userID, req)
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to sign consent challenge",
			"client_id", client.ID,
			"error", err.Error())
		return a.errorRedirect(ctx, req, fmt.Errorf("sign consent challenge: %w", err))
	}

	cc, err := a.consentContext(ctx, client, userID, req, scopes, challenge)
	if err != nil {
		return a.errorRedirect(ctx, req, err)
	}

	a.obs.Metrics.AuthorizeOutcome(string(StateConsentRequired))
	return AuthorizeResult{
		State:       StateConsentRequired,
		RedirectURL: withQuery(a.cfg.ConsentURL, url.Values{"challenge": {challenge}}),
		Consent:     &cc,
	}
}

func (a *Authorizer) issueCode(ctx context.Context, client model.Client, userID uuid.UUID, authTime time.Time, req model.AuthorizationRequest, scopes []string) AuthorizeResult {
	raw, err := token.NewOpaque()
	if err != nil {
		return a.errorRedirect(ctx, req, err)
	}

	now := a.obs.now()
	code := model.AuthorizationCode{
		CodeHash:            token.Hash(raw),
		UserID:              userID,
		ClientID:            client.ID,
		Scope:               scopes,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		AuthTime:            authTime,
		ExpiresAt:           now.Add(a.cfg.CodeTTL),
		CreatedAt:           now,
	}
	if err := a.codes.CreateCode(ctx, code); err != nil {
		a.obs.Logger.Error("Authorizer: failed to store authorization code",
			"client_id", client.ID,
			"user_id", userID,
			"error", err.Error())
		return a.errorRedirect(ctx, req, unavailable("create code", err))
	}

	a.obs.Logger.Info("Authorizer: authorization code issued",
		"client_id", client.ID,
		"user_id", userID,
		"scope", model.JoinScope(scopes))
	a.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditCodeIssued,
		Actor:    userID.String(),
		ClientID: client.ID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"scope": model.JoinScope(scopes)},
	})
	a.obs.Metrics.AuthorizeOutcome(string(StateCodeIssued))

	params := url.Values{"code": {raw}}
	return AuthorizeResult{
		State:       StateCodeIssued,
		RedirectURL: a.clientRedirect(req, params),
	}
}

// errorRedirect sends a classified error back to the already validated redirect URI.
func (a *Authorizer) errorRedirect(ctx context.Context, req model.AuthorizationRequest, err error) AuthorizeResult {
	code := model.OAuthCode(err)
	a.obs.Logger.Info("Authorizer: authorization request failed",
		"client_id", req.ClientID,
		"error_code", code,
		"error", err.Error())
	a.obs.Metrics.OAuthError("authorize", code)
	a.obs.Metrics.AuthorizeOutcome(string(StateError))

	params := url.Values{"error": {code}}
	if desc := model.Description(err); desc != "" {
		params.Set("error_description", desc)
	}
	return AuthorizeResult{
		State:       StateError,
		RedirectURL: a.clientRedirect(req, params),
		Err:         err,
	}
}

// clientRedirect appends params, the original state and the issuer to the
// registered redirect URI.
func (a *Authorizer) clientRedirect(req model.AuthorizationRequest, params url.Values) string {
	if req.State != "" {
		params.Set("state", req.State)
	}
	params.Set("iss", a.tokens.Issuer())
	return withQuery(req.RedirectURI, params)
}

func (a *Authorizer) validateClient(ctx context.Context, clientID, redirectURI string) (model.Client, error) {
	if clientID == "" {
		return model.Client{}, model.NewValidationError("client_id is required")
	}

	client, err := a.clients.GetClient(ctx, clientID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Client{}, model.NewValidationError("unknown or inactive client")
	}
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to get client",
			"client_id", clientID,
			"error", err.Error())
		return model.Client{}, unavailable("get client", err)
	}
	if !client.Active {
		return model.Client{}, model.NewValidationError("unknown or inactive client")
	}
	if !client.HasRedirectURI(redirectURI) {
		return model.Client{}, model.NewValidationError("redirect_uri is not registered for this client")
	}
	return client, nil
}

// validateRequest checks the parameters that are safe to report to the client.
func validateRequest(client model.Client, req model.AuthorizationRequest) error {
	if req.ResponseType != model.ResponseTypeCode {
		return model.NewError(model.ErrUnsupportedResponse, "response_type must be code", nil)
	}
	if len(req.Scope) == 0 {
		return model.NewError(model.ErrInvalidScope, "scope is required", nil)
	}
	if !model.IsSubset(req.Scope, client.AllowedScopes) {
		return model.NewError(model.ErrInvalidScope, "requested scope exceeds the scope allowed for this client", nil)
	}

	if req.CodeChallenge == "" {
		if client.RequirePKCE || !client.IsConfidential() {
			return model.NewValidationError("code_challenge is required")
		}
		if req.CodeChallengeMethod != "" {
			return model.NewValidationError("code_challenge_method without code_challenge")
		}
		return nil
	}
	if req.CodeChallengeMethod != model.PKCEMethodS256 {
		return model.NewValidationError("code_challenge_method must be S256")
	}
	if !pkce.ValidChallenge(req.CodeChallenge) {
		return model.NewValidationError("malformed code_challenge")
	}
	return nil
}

// sessionUser resolves a session token to an active user.
func (a *Authorizer) sessionUser(ctx context.Context, session string) (uuid.UUID, time.Time, error) {
	if session == "" {
		return uuid.Nil, time.Time{}, model.ErrUnauthenticated
	}
	userID, authTime, err := a.tokens.ParseSessionToken(session)
	if err != nil {
		return uuid.Nil, time.Time{}, model.NewError(model.ErrUnauthenticated, "", err)
	}

	user, err := a.users.GetByID(ctx, userID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && !user.Active) {
		return uuid.Nil, time.Time{}, model.NewError(model.ErrUnauthenticated, "", errors.New("session user is gone"))
	}
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to get session user",
			"user_id", userID,
			"error", err.Error())
		return uuid.Nil, time.Time{}, unavailable("get user", err)
	}
	return userID, authTime, nil
}

func (a *Authorizer) entitledScopes(ctx context.Context, userID uuid.UUID, requested []string) ([]string, error) {
	return entitledScopes(ctx, a.permissions, a.scopes, userID, requested)
}

// entitledScopes keeps the requested scopes the user may grant. Identity
// scopes are always entitled; any other scope needs its permission.
func entitledScopes(ctx context.Context, resolver model.PermissionResolver, registry model.ScopeStore, userID uuid.UUID, requested []string) ([]string, error) {
	perms, err := resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, unavailable("resolve permissions", err)
	}

	var guarded []string
	for _, s := range requested {
		if !model.IsIdentityScope(s) {
			guarded = append(guarded, s)
		}
	}
	catalogue := map[string]model.Scope{}
	if len(guarded) > 0 {
		catalogue, err = registry.GetScopes(ctx, guarded)
		if err != nil {
			return nil, unavailable("get scopes", err)
		}
	}

	granted := make([]string, 0, len(requested))
	for _, s := range requested {
		if model.IsIdentityScope(s) {
			granted = append(granted, s)
			continue
		}
		perm := s
		if entry, ok := catalogue[s]; ok {
			perm = entry.Permission()
		}
		if perms.Has(perm) {
			granted = append(granted, s)
		}
	}

	if len(granted) == 0 {
		return nil, model.NewError(model.ErrInsufficientScope, "none of the requested scopes can be granted to this user", nil)
	}
	return granted, nil
}

// RequestQuery encodes req as authorize endpoint query parameters.
func RequestQuery(req model.AuthorizationRequest) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("response_type", req.ResponseType)
	set("client_id", req.ClientID)
	set("redirect_uri", req.RedirectURI)
	set("scope", model.JoinScope(req.Scope))
	set("state", req.State)
	set("code_challenge", req.CodeChallenge)
	set("code_challenge_method", req.CodeChallengeMethod)
	set("nonce", req.Nonce)
	return q
}

// RequestFromQuery decodes authorize endpoint query parameters.
func RequestFromQuery(q url.Values) model.AuthorizationRequest {
	return model.AuthorizationRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               model.ParseScope(q.Get("scope")),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Nonce:               q.Get("nonce"),
	}
}

func withQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
