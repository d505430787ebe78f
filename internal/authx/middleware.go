package authx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const DefaultCookie = "sb-access-token"

type Middleware struct {
	Verifier *Verifier
	Roles    RoleResolver
	Cookie   string
}

func (m *Middleware) token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	name := m.Cookie
	if name == "" {
		name = DefaultCookie
	}
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate attaches an Identity when the request carries a valid token.
// Anonymous requests pass through; RequireUser rejects them where needed.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := m.token(r)
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.Verifier.Verify(tok)
		if err != nil {
			slog.Debug("rejecting session token", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		var role Role
		if m.Roles != nil {
			role, err = m.Roles.RoleFor(r.Context(), claims.Subject)
			if err != nil {
				slog.Error("role lookup failed", "user_id", claims.Subject, "err", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
		id := NewIdentity(claims.Subject, claims.Email, role)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !id.Can(c) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
