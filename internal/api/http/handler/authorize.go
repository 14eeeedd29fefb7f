package handler

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/dtroode/authz-server/internal/model"
	"github.com/dtroode/authz-server/internal/service"
)

// Authorize handles GET /oauth/authorize.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for k, v := range q {
		if len(v) > 1 {
			h.writeError(w, r, "authorize", model.NewValidationError("parameter "+k+" must not be repeated"))
			return
		}
	}

	req := service.RequestFromQuery(q)
	req.RawQuery = r.URL.RawQuery
	res, err := h.authz.Authorize(r.Context(), req, h.session(r))
	if err != nil {
		h.writeError(w, r, "authorize", err)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Redirect string `json:"redirect"`
}

type redirectBody struct {
	RedirectURL string `json:"redirect_url"`
}

// Login handles POST /login from the login page. Form posts are answered with
// a redirect, JSON posts with the redirect target.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginBody
	asJSON := isJSON(r)
	if asJSON {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			h.writeError(w, r, "login", model.NewValidationError("malformed JSON body"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, r, "login", model.NewValidationError("malformed form body"))
			return
		}
		in = loginBody{
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
			Redirect: r.PostForm.Get("redirect"),
		}
	}

	out, err := h.authz.CompleteAuthentication(r.Context(), service.LoginRequest{
		Username: in.Username,
		Password: in.Password,
		Redirect: in.Redirect,
	})
	if out.SessionToken != "" {
		h.setSession(w, out.SessionToken)
	}
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	if asJSON {
		h.writeJSON(w, http.StatusOK, redirectBody{RedirectURL: out.Result.RedirectURL})
		return
	}
	http.Redirect(w, r, out.Result.RedirectURL, http.StatusSeeOther)
}

// ConsentContext handles GET /oauth/consent?challenge=.
func (h *Handler) ConsentContext(w http.ResponseWriter, r *http.Request) {
	cc, err := h.authz.ConsentContext(r.Context(), r.URL.Query().Get("challenge"), h.session(r))
	if err != nil {
		h.writeError(w, r, "consent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, cc)
}

// SubmitConsent handles POST /oauth/consent.
func (h *Handler) SubmitConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, "consent", model.NewValidationError("malformed form body"))
		return
	}
	f := r.PostForm

	var allow bool
	switch f.Get("decision") {
	case "allow":
		allow = true
	case "deny":
	default:
		h.writeError(w, r, "consent", model.NewValidationError("decision must be allow or deny"))
		return
	}

	res, err := h.authz.SubmitConsent(r.Context(), service.ConsentDecision{
		Challenge:     f.Get("challenge"),
		Allow:         allow,
		State:         f.Get("state"),
		ClientID:      f.Get("client_id"),
		RedirectURI:   f.Get("redirect_uri"),
		CodeChallenge: f.Get("code_challenge"),
	}, h.session(r))
	if err != nil {
		h.writeError(w, r, "consent", err)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
