package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AuthTokenHeader is the header carrying the shared API token.
const AuthTokenHeader = "X-Auth-Token"

// Auth requires the shared token on every request. An empty token disables
// the check.
func Auth(token string, reject func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// constant-time compare
			if subtle.ConstantTimeCompare([]byte(r.Header.Get(AuthTokenHeader)), []byte(token)) != 1 {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
