package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"
)

type authContextKey struct{}

// AuthMiddleware resolves the admin session for /api/admin/ endpoints and
// stores it on the request context. Login stays public; everything else under
// the admin prefix requires a valid, unexpired session.
func AuthMiddleware(auth store.AuthStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresAdmin(r) {
			next.ServeHTTP(w, r)
			return
		}

		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}

		session, err := auth.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFromContext(ctx context.Context) (models.AdminSession, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return models.AdminSession{}, false
	}
	session, ok := value.(models.AdminSession)
	if !ok {
		return models.AdminSession{}, false
	}
	return session, true
}

func requiresAdmin(r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, "/api/admin/") {
		return false
	}
	if r.URL.Path == "/api/admin/login" {
		return false
	}
	return r.Method != http.MethodOptions
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
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
