package auth

import (
	"net/http"
	"strings"

	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// Middleware resolves the bearer token into a Principal on the request
// context. Browsers cannot set headers on EventSource or WebSocket
// requests, so the access_token query parameter is accepted as well.
// Requests without a token pass through unauthenticated; invalid tokens
// are rejected.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := tokenFromRequest(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.Verify(token)
		if err != nil {
			utils.RespondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{
			UserID: claims.UserID,
			Name:   claims.Name,
			Role:   claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, ErrAuthRequired.Error())
			return
		}
		if !p.IsAdmin() {
			utils.RespondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1]), true
		}
		// malformed header still counts as a presented token
		return header, true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
