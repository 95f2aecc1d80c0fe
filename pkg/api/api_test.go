package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/edgeflare/pumpdemo/pkg/lifecycle"
	"github.com/edgeflare/pumpdemo/pkg/registry"
	"github.com/edgeflare/pumpdemo/pkg/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	broker    *memory.Broker
	dashboard *lifecycle.Dashboard
	router    *httputil.Router
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	b := memory.NewBroker()
	c := b.Client()
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect() })

	d := lifecycle.NewDashboard(c, lifecycle.DashboardConfig{SessionID: "a1b2c3", MobileBaseURL: "https://pump.example.com"})
	require.NoError(t, d.Open(context.Background()))
	t.Cleanup(d.Close)

	return &fixture{broker: b, dashboard: d, router: NewRouter(d, cfg, nil)}
}

func (f *fixture) join(t *testing.T, id, name string) {
	t.Helper()
	c := f.broker.Client()
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect() })
	require.NoError(t, c.Publish(context.Background(), "a1b2c3/login", []byte(`{"name":"`+name+`","id":"`+id+`"}`)))
	require.Eventually(t, func() bool { return f.dashboard.Watching(id) }, time.Second, time.Millisecond)
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{})
	rr := f.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionFlow(t *testing.T) {
	f := newFixture(t, Config{})

	var s Session
	rr := f.do(http.MethodGet, "/session")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&s))
	assert.Equal(t, "a1b2c3", s.SessionID)
	assert.Equal(t, "https://pump.example.com/login?sessionId=a1b2c3", s.MobileURL)
	assert.Equal(t, lifecycle.StateWaiting, s.State)
	assert.False(t, s.CanStart)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/start").Code)

	f.join(t, "u2", "Pump B")
	f.join(t, "u1", "Pump A")

	var stations []registry.Station
	rr = f.do(http.MethodGet, "/stations")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stations))
	require.Len(t, stations, 2)
	assert.Equal(t, "u1", stations[0].ID)
	assert.Equal(t, 100.0, stations[0].FuelLevel)
	assert.Equal(t, []string{}, stations[0].Logs)

	var st registry.Station
	rr = f.do(http.MethodGet, "/stations/u2")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "Pump B", st.Name)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/stations/ghost").Code)

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/start").Code)
	assert.Equal(t, lifecycle.StateStarted, f.dashboard.State())
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/start").Code)

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/stations/u1/stop").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/stations/ghost/stop").Code)
}

func TestControlBasicAuth(t *testing.T) {
	f := newFixture(t, Config{BasicAuth: map[string]string{"operator": "pumpit"}})
	f.join(t, "u1", "Pump A")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/stations").Code, "reads stay open")
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/start").Code)

	req := httptest.NewRequest(http.MethodPost, "/start", nil)
	req.SetBasicAuth("operator", "pumpit")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestEmbeddedUI(t *testing.T) {
	f := newFixture(t, Config{UI: true})
	rr := f.do(http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Pump demo")

	assert.Equal(t, http.StatusNotFound, newFixture(t, Config{}).do(http.MethodGet, "/").Code)
}
