package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/authz-server/internal/model"
)

// LoginRequest is what the login collaborator submits.
type LoginRequest struct {
	Username string
	Password string
	// Redirect is the continuation target handed to the login page.
	Redirect string
}

// LoginResult carries the new session and the resumed authorization step.
type LoginResult struct {
	SessionToken string
	Result       AuthorizeResult
}

// CompleteAuthentication verifies credentials, establishes a session and
// re-enters the authorization flow carried by the continuation target.
//
// Parameters:
//   - ctx: The request context
//   - in: Credentials and the continuation target from the login page
//
// Returns the new session token and the resumed step, or ErrUnauthenticated,
// ErrAccountLocked, ErrValidation or ErrUnavailable.
func (a *Authorizer) CompleteAuthentication(ctx context.Context, in LoginRequest) (LoginResult, error) {
	req, err := a.continuation(in.Redirect)
	if err != nil {
		return LoginResult{}, err
	}
	if in.Username == "" || in.Password == "" {
		return LoginResult{}, model.NewValidationError("username and password are required")
	}

	now := a.obs.now()
	until, err := a.attempts.LockedUntil(ctx, in.Username, now)
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to read lockout state",
			"username", in.Username,
			"error", err.Error())
		return LoginResult{}, unavailable("read lockout", err)
	}
	if now.Before(until) {
		a.obs.Logger.Info("Authorizer: login attempt on locked account",
			"username", in.Username,
			"locked_until", until)
		a.obs.emit(ctx, model.AuditEvent{
			Type:    model.AuditLoginFailed,
			Actor:   in.Username,
			Outcome: model.OutcomeFailure,
			Reason:  "account locked",
		})
		return LoginResult{}, model.NewError(model.ErrAccountLocked, "the account is temporarily locked", nil)
	}

	user, err := a.checkPassword(ctx, in.Username, in.Password)
	if errors.Is(err, model.ErrUnauthenticated) {
		return LoginResult{}, a.loginFailed(ctx, in.Username, now)
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := a.attempts.Reset(ctx, in.Username); err != nil {
		a.obs.Logger.Warn("Authorizer: failed to reset login failures",
			"username", in.Username,
			"error", err.Error())
	}

	session, err := a.tokens.GenerateSessionToken(user.ID, now)
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to sign session token",
			"user_id", user.ID,
			"error", err.Error())
		return LoginResult{}, err
	}

	a.obs.Logger.Info("Authorizer: user authenticated",
		"user_id", user.ID,
		"client_id", req.ClientID)
	a.obs.emit(ctx, model.AuditEvent{
		Type:     model.AuditLoginSucceeded,
		Actor:    user.ID.String(),
		ClientID: req.ClientID,
		Outcome:  model.OutcomeSuccess,
	})

	out := LoginResult{SessionToken: session}
	client, err := a.validateClient(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		return out, err
	}
	if err := validateRequest(client, req); err != nil {
		out.Result = a.errorRedirect(ctx, req, err)
		return out, nil
	}
	out.Result = a.decide(ctx, client, user.ID, now, req)
	return out, nil
}

// continuation accepts only a host-less path to the authorize endpoint and
// returns the request it carries.
func (a *Authorizer) continuation(target string) (model.AuthorizationRequest, error) {
	invalid := model.NewValidationError("invalid continuation target")

	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n\t") {
		return model.AuthorizationRequest{}, invalid
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" || u.User != nil || u.Opaque != "" || u.Fragment != "" {
		return model.AuthorizationRequest{}, invalid
	}
	if u.Path != a.cfg.AuthorizePath {
		return model.AuthorizationRequest{}, invalid
	}
	req := RequestFromQuery(u.Query())
	req.RawQuery = u.RawQuery
	return req, nil
}

// checkPassword returns ErrUnauthenticated for unknown, inactive or wrong
// credentials alike. Unknown users are compared against a dummy hash.
func (a *Authorizer) checkPassword(ctx context.Context, username, password string) (model.User, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, model.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(password))
		return model.User{}, model.ErrUnauthenticated
	}
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to get user by username",
			"username", username,
			"error", err.Error())
		return model.User{}, unavailable("get user", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return model.User{}, model.ErrUnauthenticated
	}
	if !user.Active {
		return model.User{}, model.ErrUnauthenticated
	}
	return user, nil
}

// loginFailed counts the failure and locks the account at the threshold.
func (a *Authorizer) loginFailed(ctx context.Context, username string, now time.Time) error {
	a.obs.emit(ctx, model.AuditEvent{
		Type:    model.AuditLoginFailed,
		Actor:   username,
		Outcome: model.OutcomeFailure,
		Reason:  "bad credentials",
	})

	failures, err := a.attempts.RecordFailure(ctx, username, now, a.cfg.Lockout.Window)
	if err != nil {
		a.obs.Logger.Error("Authorizer: failed to record login failure",
			"username", username,
			"error", err.Error())
		return unavailable("record login failure", err)
	}

	if failures >= a.cfg.Lockout.Threshold {
		until := now.Add(a.cfg.Lockout.Duration)
		if err := a.attempts.Lock(ctx, username, until); err != nil {
			a.obs.Logger.Error("Authorizer: failed to lock account",
				"username", username,
				"error", err.Error())
			return unavailable("lock account", err)
		}
		a.obs.Logger.Warn("Authorizer: account locked",
			"username", username,
			"failures", failures,
			"locked_until", until)
		a.obs.emit(ctx, model.AuditEvent{
			Type:    model.AuditAccountLocked,
			Actor:   username,
			Outcome: model.OutcomeFailure,
			Reason:  "too many failed logins",
			Details: map[string]string{"locked_until": until.UTC().Format(time.RFC3339)},
		})
	}

	return model.NewError(model.ErrUnauthenticated, "invalid username or password", nil)
}
