package httpapi

import (
	"net/http"
	"strings"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
)

type actorHandler func(w http.ResponseWriter, r *http.Request, actor models.Actor)

// withSession resolves the bearer token to the calling account.
func (h *Handler) withSession(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionTokenFromRequest(r)
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		actor, err := h.accounts.CurrentUser(r.Context(), token)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next(w, r, actor)
	}
}

// withManager rejects non-managers before the handler runs. The lifecycle
// core checks the role again.
func (h *Handler) withManager(next actorHandler) http.HandlerFunc {
	return h.withSession(func(w http.ResponseWriter, r *http.Request, actor models.Actor) {
		if !actor.IsManager() {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "manager role required")
			return
		}
		next(w, r, actor)
	})
}

func sessionTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-Token"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
