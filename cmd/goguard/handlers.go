package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type api struct {
	engine *goGuard.Engine
	log    zerolog.Logger
}

// newRouter mounts the public auth endpoints and the guarded account
// endpoints.
func newRouter(engine *goGuard.Engine, log zerolog.Logger) http.Handler {
	h := &api{engine: engine, log: log}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", h.createAccount)
		r.Post("/login", h.login)
		r.Post("/login/challenge", h.confirmChallenge)
		r.Post("/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Get("/me", h.me)
			r.Get("/sessions", h.listSessions)
			r.Delete("/sessions/{sessionID}", h.endSession)
			r.Post("/logout", h.logout)
			r.Post("/logout-all", h.logoutAll)

			r.With(middleware.RequireRole(goGuard.RoleAdmin)).
				Put("/admin/users/{userID}/role", h.setRole)
		})
	})
	return r
}

type credentialsBody struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type tokenResponse struct {
	SessionID    string `json:"session_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *api) createAccount(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !decode(w, r, &body) {
		return
	}
	u, err := h.engine.CreateAccount(r.Context(), body.Identity, body.Password, goGuard.RoleUser)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID, "identity": u.Identity})
}

func (h *api) login(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.engine.LoginWithResult(r.Context(), body.Identity, body.Password, middleware.ClientInfoFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.ChallengeRequired {
		writeJSON(w, http.StatusAccepted, map[string]bool{"challenge_required": true})
		return
	}
	writeTokens(w, r, res.TokenPair)
}

func (h *api) confirmChallenge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity string `json:"identity"`
		Code     string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}
	res, err := h.engine.ConfirmLoginChallenge(r.Context(), body.Identity, body.Code, middleware.ClientInfoFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeTokens(w, r, res.TokenPair)
}

func (h *api) refresh(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(middleware.RefreshHeader)
	if token == "" {
		if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
			token = c.Value
		}
	}
	pair, err := h.engine.Refresh(r.Context(), token, middleware.ClientInfoFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeTokens(w, r, pair)
}

func (h *api) me(w http.ResponseWriter, r *http.Request) {
	p, _ := goGuard.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":    p.UserID,
		"role":       string(p.Role),
		"session_id": p.SessionID,
	})
}

type sessionResponse struct {
	ID           string    `json:"id"`
	Current      bool      `json:"current"`
	DisplayName  string    `json:"display_name,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IP           string    `json:"ip"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Suspicious   bool      `json:"suspicious"`
}

func (h *api) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := goGuard.PrincipalFromContext(r.Context())
	sessions, err := h.engine.ListSessions(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:           s.ID,
			Current:      s.ID == p.SessionID,
			DisplayName:  s.DisplayName,
			UserAgent:    s.UserAgent,
			IP:           s.IP,
			City:         s.Location.City,
			Country:      s.Location.Country,
			CreatedAt:    s.CreatedAt,
			LastActiveAt: s.LastActiveAt,
			Suspicious:   s.IsSuspicious,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// endSession signs out one of the caller's own devices.
func (h *api) endSession(w http.ResponseWriter, r *http.Request) {
	p, _ := goGuard.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "sessionID")

	sessions, err := h.engine.ListSessions(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	owned := false
	for _, s := range sessions {
		if s.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := h.engine.Logout(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *api) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := goGuard.PrincipalFromContext(r.Context())
	if err := h.engine.Logout(r.Context(), p.SessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	clearTokenCookies(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := goGuard.PrincipalFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clearTokenCookies(w, r)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *api) setRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := h.engine.SetUserRole(r.Context(), chi.URLParam(r, "userID"), goGuard.Role(body.Role)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps engine errors onto HTTP. Challenge failures share one
// status so the response does not say which check failed.
func statusFor(err error) int {
	switch {
	case errors.Is(err, goGuard.ErrInvalidInput), errors.Is(err, goGuard.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, goGuard.ErrInvalidCredentials),
		errors.Is(err, goGuard.ErrAccountUnverified),
		errors.Is(err, goGuard.ErrSessionInvalidOrExpired),
		errors.Is(err, goGuard.ErrTokenInvalid),
		errors.Is(err, goGuard.ErrChallengeNotFoundOrExpired),
		errors.Is(err, goGuard.ErrChallengeIPMismatch),
		errors.Is(err, goGuard.ErrChallengeFingerprintMismatch),
		errors.Is(err, goGuard.ErrChallengeIncorrect):
		return http.StatusUnauthorized
	case errors.Is(err, goGuard.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, goGuard.ErrDuplicateIdentity), errors.Is(err, goGuard.ErrSessionCapExceeded):
		return http.StatusConflict
	case errors.Is(err, goGuard.ErrStoreUnavailable), errors.Is(err, goGuard.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, http.StatusText(status), status)
		return
	}
	msg := err.Error()
	if errors.Is(err, goGuard.ErrChallengeIPMismatch) ||
		errors.Is(err, goGuard.ErrChallengeFingerprintMismatch) ||
		errors.Is(err, goGuard.ErrChallengeIncorrect) {
		msg = "challenge failed"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeTokens(w http.ResponseWriter, r *http.Request, pair goGuard.TokenPair) {
	setCookie(w, r, middleware.AccessCookie, pair.AccessToken, 0)
	setCookie(w, r, middleware.RefreshCookie, pair.RefreshToken, 0)
	writeJSON(w, http.StatusOK, tokenResponse{
		SessionID:    pair.SessionID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func clearTokenCookies(w http.ResponseWriter, r *http.Request) {
	setCookie(w, r, middleware.AccessCookie, "", -1)
	setCookie(w, r, middleware.RefreshCookie, "", -1)
}

func setCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
