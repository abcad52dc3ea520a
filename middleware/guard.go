package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

const (
	// AccessCookie and RefreshCookie are read when no header carries the token.
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	RefreshHeader     = "X-Refresh-Token"
	FingerprintHeader = "X-Device-Fingerprint"
	DeviceNameHeader  = "X-Device-Name"

	// Set on the response after a legacy credential was upgraded.
	NewAccessTokenHeader  = "X-New-Access-Token"
	NewRefreshTokenHeader = "X-New-Refresh-Token"
)

// ClientInfoFunc derives the caller's network and device attributes.
type ClientInfoFunc func(*http.Request) goGuard.ClientInfo

type options struct {
	clientInfo ClientInfoFunc
	onReject   func(http.ResponseWriter, *http.Request, goGuard.RejectReason)
}

// Option customizes [Guard].
type Option func(*options)

// WithClientInfo replaces [ClientInfoFromRequest].
func WithClientInfo(fn ClientInfoFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.clientInfo = fn
		}
	}
}

// WithRejectHandler replaces the default plain 401 response.
func WithRejectHandler(fn func(http.ResponseWriter, *http.Request, goGuard.RejectReason)) Option {
	return func(o *options) {
		if fn != nil {
			o.onReject = fn
		}
	}
}

// Guard authenticates every request through [goGuard.Engine.Authenticate]
// and attaches the resulting [goGuard.Principal] to the request context.
// Upgraded legacy credentials are handed back in response headers and
// cookies before the wrapped handler runs.
func Guard(engine *goGuard.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		clientInfo: ClientInfoFromRequest,
		onReject:   unauthorized,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			access, refresh := requestTokens(r)
			out, err := engine.Authenticate(r.Context(), access, refresh, o.clientInfo(r))
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, goGuard.ErrStoreUnavailable) || errors.Is(err, goGuard.ErrEngineNotReady) {
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			var principal goGuard.Principal
			switch res := out.(type) {
			case goGuard.Allowed:
				principal = res.Principal()
			case goGuard.Migrated:
				w.Header().Set(NewAccessTokenHeader, res.AccessToken)
				w.Header().Set(NewRefreshTokenHeader, res.RefreshToken)
				setTokenCookie(w, r, AccessCookie, res.AccessToken)
				setTokenCookie(w, r, RefreshCookie, res.RefreshToken)
				principal = res.Principal()
			case goGuard.Rejected:
				o.onReject(w, r, res.Reason)
				return
			default:
				o.onReject(w, r, goGuard.ReasonSessionInvalidOrExpired)
				return
			}

			next.ServeHTTP(w, r.WithContext(goGuard.WithPrincipal(r.Context(), principal)))
		})
	}
}

// ClientInfoFromRequest takes the IP from the connection and the device
// fingerprint from [FingerprintHeader], falling back to the user agent.
// Deployments behind a proxy should run chi's RealIP (or equivalent) first.
func ClientInfoFromRequest(r *http.Request) goGuard.ClientInfo {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	fp := strings.TrimSpace(r.Header.Get(FingerprintHeader))
	if fp == "" {
		fp = r.UserAgent()
	}
	return goGuard.ClientInfo{
		IP:          host,
		UserAgent:   r.UserAgent(),
		Fingerprint: fp,
		DisplayName: strings.TrimSpace(r.Header.Get(DeviceNameHeader)),
	}
}

func requestTokens(r *http.Request) (access, refresh string) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		access = token
	} else if c, err := r.Cookie(AccessCookie); err == nil {
		access = c.Value
	}

	refresh = strings.TrimSpace(r.Header.Get(RefreshHeader))
	if refresh == "" {
		if c, err := r.Cookie(RefreshCookie); err == nil {
			refresh = c.Value
		}
	}
	return access, refresh
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func unauthorized(w http.ResponseWriter, _ *http.Request, reason goGuard.RejectReason) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+string(reason)+`"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
