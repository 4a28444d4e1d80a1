package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/VladKvetkin/keyflow/internal/services/jwttoken"
)

type UserIDKey struct{}

const TokenCookieName = "token"

const bearerPrefix = "Bearer "

// Auth accepts the session token from the token cookie or a bearer
// Authorization header and puts the user id into the request context.
func Auth(tokens *jwttoken.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
			accessToken := bearerToken(req)

			if accessToken == "" {
				tokenCookie, err := req.Cookie(TokenCookieName)
				if err != nil {
					if err == http.ErrNoCookie {
						resp.WriteHeader(http.StatusUnauthorized)
						return
					}

					resp.WriteHeader(http.StatusInternalServerError)
					return
				}

				accessToken = tokenCookie.Value
			}

			userID, err := tokens.Parse(accessToken)
			if err != nil {
				resp.WriteHeader(http.StatusUnauthorized)
				return
			}

			req = req.WithContext(context.WithValue(req.Context(), UserIDKey{}, userID))

			next.ServeHTTP(resp, req)
		})
	}
}

func UserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey{}).(int64)
	return userID, ok && userID != 0
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}
