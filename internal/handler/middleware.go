package handler

import (
	"net/http"

	"eegility/internal/auth"

	"go.uber.org/zap"
)

// Authenticate resolves the caller once per request and stores the
// identity in the request context.
func Authenticate(authn auth.Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authn.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), *id)))
		})
	}
}
