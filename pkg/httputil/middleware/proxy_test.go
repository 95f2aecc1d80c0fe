package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		w.Header().Set("X-Upstream-Path", r.URL.Path)
		w.Header().Set("X-Upstream-User", user+":"+pass)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "queued")
	}))
	defer upstream.Close()

	h, err := Proxy(upstream.URL, ProxyOptions{TrimPrefix: "/semp", Username: "admin", Password: "secret"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/semp/SEMP/v2/config/msgVpns/pumpdemo/queues", nil)
	req.SetBasicAuth("operator", "pumpit")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "queued", rr.Body.String())
	assert.Equal(t, "/SEMP/v2/config/msgVpns/pumpdemo/queues", rr.Header().Get("X-Upstream-Path"))
	assert.Equal(t, "admin:secret", rr.Header().Get("X-Upstream-User"))
}

func TestProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	h, err := Proxy(target, ProxyOptions{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestProxyInvalidTarget(t *testing.T) {
	for _, target := range []string{"", "localhost:8080", "://bad"} {
		_, err := Proxy(target, ProxyOptions{})
		assert.Error(t, err, target)
	}
}
