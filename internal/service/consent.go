package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"

	"github.com/dtroode/authz-server/internal/model"
)

var identityScopeDescriptions = map[string]string{
	model.ScopeOpenID:        "Sign you in with your account",
	model.ScopeProfile:       "Read your name and username",
	model.ScopeEmail:         "Read your email address",
	model.ScopeOfflineAccess: "Stay signed in when you are not using the application",
}

// ConsentContext is what the consent collaborator renders. The in-flight
// request parameters must be echoed back verbatim with the decision.
type ConsentContext struct {
	Challenge     string             `json:"challenge"`
	Client        ConsentClient      `json:"client"`
	User          ConsentUser        `json:"user"`
	Scopes        []ScopeDescription `json:"scopes"`
	State         string             `json:"state"`
	ClientID      string             `json:"client_id"`
	RedirectURI   string             `json:"redirect_uri"`
	CodeChallenge string             `json:"code_challenge,omitempty"`
}

type ConsentClient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ConsentUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type ScopeDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConsentDecision is the collaborator's answer keyed by the echoed request parameters.
type ConsentDecision struct {
	Challenge     string
	Allow         bool
	State         string
	ClientID      string
	RedirectURI   string
	CodeChallenge string
}

// ConsentContext describes a pending consent challenge to the logged-in user.
func (a *Authorizer) ConsentContext(ctx context.Context, challenge, session string) (ConsentContext, error) {
	userID, _, err := a.sessionUser(ctx, session)
	if err != nil {
		return ConsentContext{}, err
	}
	req, err := a.tokens.ParseConsentChallenge(challenge, userID)
	if err != nil {
		return ConsentContext{}, model.NewError(model.ErrValidation, "invalid or expired consent challenge", err)
	}
	client, err := a.validateClient(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		return ConsentContext{}, err
	}
	scopes, err := a.entitledScopes(ctx, userID, req.Scope)
	if err != nil {
		return ConsentContext{}, err
	}
	return a.consentContext(ctx, client, userID, req, scopes, challenge)
}

// SubmitConsent applies the user's decision. The echoed parameters and the
// redirect URI are checked again before anything is redirected.
func (a *Authorizer) SubmitConsent(ctx context.Context, d ConsentDecision, session string) (AuthorizeResult, error) {
	userID, authTime, err := a.sessionUser(ctx, session)
	if err != nil {
		return AuthorizeResult{}, err
	}
	req, err := a.tokens.ParseConsentChallenge(d.Challenge, userID)
	if err != nil {
		return AuthorizeResult{}, model.NewError(model.ErrValidation, "invalid or expired consent challenge", err)
	}

	if d.State != req.State || d.ClientID != req.ClientID || d.RedirectURI != req.RedirectURI || d.CodeChallenge != req.CodeChallenge {
		a.obs.Logger.Warn("Authorizer: consent parameters do not match the challenge",
			"user_id", userID,
			"client_id", req.ClientID,
			"echoed_client_id", d.ClientID)
		return AuthorizeResult{}, model.NewValidationError("consent parameters do not match the authorization request")
	}

	client, err := a.validateClient(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		return AuthorizeResult{}, err
	}
	if err := validateRequest(client, req); err != nil {
		return a.errorRedirect(ctx, req, err), nil
	}

	if !d.Allow {
		return a.denied(ctx, userID, req), nil
	}

	scopes, err := a.entitledScopes(ctx, userID, req.Scope)
	if err != nil {
		return a.errorRedirect(ctx, req, err), nil
	}

	grant := model.ConsentGrant{
		UserID:    userID,
		ClientID:  client.ID,
		Scopes:    scopes,
		GrantedAt: a.obs.now(),
	}
	if err := a.consents.SaveConsent(ctx, grant); err != nil {
		a.obs.Logger.Error("Authorizer: failed to save consent",
			"user_id", userID,
			"client_id", client.ID,
			"error", err.Error())
		return a.errorRedirect(ctx, req, unavailable("save consent", err)), nil
	}
	a.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditConsentGranted,
		Actor:    userID.String(),
		ClientID: client.ID,
		Outcome:  model.OutcomeSuccess,
		Details:  map[string]string{"scope": model.JoinScope(scopes)},
	})

	return a.issueCode(ctx, client, userID, authTime, req, scopes), nil
}

func (a *Authorizer) denied(ctx context.Context, userID uuid.UUID, req model.AuthorizationRequest) AuthorizeResult {
	a.obs.Logger.Info("Authorizer: consent denied",
		"user_id", userID,
		"client_id", req.ClientID)
	a.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditConsentDenied,
		Actor:    userID.String(),
		ClientID: req.ClientID,
		Outcome:  model.OutcomeFailure,
	})
	a.obs.Metrics.AuthorizeOutcome(string(StateDenied))

	params := url.Values{
		"error":             {model.CodeAccessDenied},
		"error_description": {"The resource owner denied the request"},
	}
	return AuthorizeResult{
		State:       StateDenied,
		RedirectURL: a.clientRedirect(req, params),
	}
}

func (a *Authorizer) consentContext(ctx context.Context, client model.Client, userID uuid.UUID, req model.AuthorizationRequest, scopes []string, challenge string) (ConsentContext, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ConsentContext{}, model.ErrUnauthenticated
		}
		return ConsentContext{}, unavailable("get user", err)
	}

	catalogue, err := a.scopes.GetScopes(ctx, scopes)
	if err != nil {
		return ConsentContext{}, unavailable("get scopes", err)
	}

	described := make([]ScopeDescription, 0, len(scopes))
	for _, s := range scopes {
		desc := s
		if entry, ok := catalogue[s]; ok && entry.Description != "" {
			desc = entry.Description
		} else if d, ok := identityScopeDescriptions[s]; ok {
			desc = d
		}
		described = append(described, ScopeDescription{Name: s, Description: desc})
	}

	return ConsentContext{
		Challenge:     challenge,
		Client:        ConsentClient{ID: client.ID, Name: client.Name},
		User:          ConsentUser{ID: user.ID.String(), Username: user.Username, Name: user.Name},
		Scopes:        described,
		State:         req.State,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
	}, nil
}
