package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/uleam-dti/dms/internal/auth"
)

// authHandler is a handler that runs with a resolved caller context.
type authHandler func(w http.ResponseWriter, r *http.Request, caller *auth.Context)

// authenticated wraps a handler with bearer-token resolution. Missing
// or bad tokens get 401; an unreachable key source gets 503 so clients
// retry instead of logging out.
func (a *API) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "No autenticado.")
			return
		}

		caller, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrKeysUnavailable):
				respondError(w, http.StatusServiceUnavailable, "Servicio de autenticación no disponible.")
			case errors.Is(err, auth.ErrUnauthorized):
				respondError(w, http.StatusUnauthorized, "Token inválido o expirado.")
			default:
				a.logger.Error("authentication failed", "error", err)
				respondError(w, http.StatusUnauthorized, "Token inválido o expirado.")
			}
			return
		}

		next(w, r, caller)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientIP prefers the first X-Forwarded-For hop, then the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
