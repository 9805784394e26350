package middleware

import (
	"context"
	"net/http"
	"strings"

	"diary-sync-server/internal/domain"
	"diary-sync-server/pkg/response"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionValidator checks an unlock session token.
type SessionValidator interface {
	Session(token string) (*domain.SessionResponse, error)
}

// AuthMiddleware admits requests carrying a valid unlock session as a
// Bearer token. It never guards diary writes, which use x-pass instead.
func AuthMiddleware(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			session, err := sessions.Session(strings.TrimSpace(parts[1]))
			if err != nil {
				response.Unauthorized(w, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSession(r *http.Request) *domain.SessionResponse {
	session, ok := r.Context().Value(sessionKey).(*domain.SessionResponse)
	if !ok {
		return nil
	}
	return session
}
