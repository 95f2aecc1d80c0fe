package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyBasicAuth(t *testing.T) {
	basic := func(s string) string { return "Basic " + base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedMsg    string
	}{
		{"missing authorization header", "", http.StatusUnauthorized, "authorization required"},
		{"bearer token", "Bearer some-token", http.StatusUnauthorized, "authorization required"},
		{"invalid base64", "Basic invalid-base64", http.StatusUnauthorized, "authorization required"},
		{"no colon", basic("operatorpass"), http.StatusUnauthorized, "authorization required"},
		{"wrong password", basic("operator:nope"), http.StatusUnauthorized, "invalid credentials"},
		{"unknown user", basic("guest:pumpit"), http.StatusUnauthorized, "invalid credentials"},
		{"valid credentials", basic("operator:pumpit"), http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/start", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			handler := VerifyBasicAuth(BasicAuthCreds(map[string]string{"operator": "pumpit"}))(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					user, ok := httputil.BasicAuthUser(r)
					require.True(t, ok)
					assert.Equal(t, "operator", user)
					w.WriteHeader(http.StatusOK)
				}))
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedMsg == "" {
				return
			}
			assert.Equal(t, `Basic realm="pumpdemo"`, rr.Header().Get("WWW-Authenticate"))
			var body httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.expectedMsg, body.Message)
		})
	}
}
