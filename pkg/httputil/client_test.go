package httputil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.bodies = append(u.bodies, string(body))
	status := http.StatusOK
	if len(u.statuses) > 0 {
		status, u.statuses = u.statuses[0], u.statuses[1:]
	}
	u.mu.Unlock()
	w.WriteHeader(status)
	w.Write([]byte(`{"ok":true}`))
}

func fastConfig(method, url string) RequestConfig {
	cfg := DefaultRequestConfig(method, url)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestRequestRetriesServerErrors(t *testing.T) {
	u := &upstream{statuses: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}
	srv := httptest.NewServer(u)
	defer srv.Close()

	resp, err := Request(context.Background(), fastConfig(http.MethodPost, srv.URL), map[string]string{"queueName": "q1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))

	require.Len(t, u.bodies, 3)
	for _, b := range u.bodies {
		assert.JSONEq(t, `{"queueName":"q1"}`, b, "body is sent on every attempt")
	}
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	u := &upstream{statuses: []int{http.StatusBadRequest}}
	srv := httptest.NewServer(u)
	defer srv.Close()

	resp, err := Request(context.Background(), fastConfig(http.MethodPost, srv.URL), "raw")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, u.bodies, 1)
}

func TestRequestGivesUpAfterMaxRetries(t *testing.T) {
	u := &upstream{statuses: []int{500, 500, 500, 500, 500, 500}}
	srv := httptest.NewServer(u)
	defer srv.Close()

	cfg := fastConfig(http.MethodGet, srv.URL)
	cfg.MaxRetries = 2
	_, err := Request(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Len(t, u.bodies, 3)
}

func TestRequestWithoutRetry(t *testing.T) {
	u := &upstream{statuses: []int{http.StatusInternalServerError}}
	srv := httptest.NewServer(u)
	defer srv.Close()

	cfg := fastConfig(http.MethodGet, srv.URL)
	cfg.RetryEnabled = false
	cfg.Headers = map[string][]string{"Accept": {"application/json"}}
	resp, err := Request(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Request.Header.Get("Accept"))
	assert.Len(t, u.bodies, 1)
}

func TestRequestSetsContentType(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	_, err := Request(context.Background(), fastConfig(http.MethodPut, srv.URL), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "application/json", got)
}
