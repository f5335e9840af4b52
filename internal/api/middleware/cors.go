package middleware

import (
	"net/http"
	"slices"
)

// CORS sets cross-origin headers. An empty origins list allows any origin;
// otherwise only listed origins receive the headers. Preflight requests are
// answered directly with 204.
func CORS(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowOrigin := "*"
			if len(origins) > 0 {
				allowOrigin = ""
				if origin := r.Header.Get("Origin"); slices.Contains(origins, origin) {
					allowOrigin = origin
					w.Header().Add("Vary", "Origin")
				}
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
