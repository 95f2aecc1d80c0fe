package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
)

// BasicAuthConfig holds the accepted username/password pairs.
type BasicAuthConfig struct {
	Credentials map[string]string
}

func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{Credentials: credentials}
}

// VerifyBasicAuth rejects requests without valid credentials. The authenticated
// user is stored in the request context.
func VerifyBasicAuth(config *BasicAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="pumpdemo"`)
				httputil.Error(w, http.StatusUnauthorized, "authorization required")
				return
			}

			valid, known := config.Credentials[username]
			if !known || subtle.ConstantTimeCompare([]byte(valid), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="pumpdemo"`)
				httputil.Error(w, http.StatusUnauthorized, "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
