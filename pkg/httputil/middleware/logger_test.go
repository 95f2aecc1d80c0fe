package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func TestLoggerCustomFormat(t *testing.T) {
	logger, logs := newTestLogger()
	mw := LoggerWithOptions(&LoggerOptions{
		Logger: logger,
		Format: func(_ string, rec *ResponseRecorder, _ *http.Request, _ time.Duration) []zap.Field {
			return []zap.Field{zap.Int("code", rec.StatusCode)}
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "response", logs.All()[0].Message)
	assert.EqualValues(t, http.StatusTeapot, logs.All()[0].ContextMap()["code"])
}

func TestLoggerDefaultFormat(t *testing.T) {
	logger, logs := newTestLogger()
	handler := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.LoggerFrom(r).Info("handling")
			w.WriteHeader(http.StatusNoContent)
		}),
		RequestID,
		LoggerWithOptions(&LoggerOptions{Logger: logger}),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/start", nil))

	require.Equal(t, 2, logs.Len())
	reqID := rr.Header().Get(RequestIDHeader)

	inner := logs.All()[0]
	assert.Equal(t, "handling", inner.Message)
	assert.Equal(t, reqID, inner.ContextMap()["req_id"])

	resp := logs.All()[1].ContextMap()
	assert.Equal(t, "POST", resp["method"])
	assert.EqualValues(t, http.StatusNoContent, resp["status"])
	assert.Equal(t, reqID, resp["req_id"])
}

func TestLoggerWithoutRequestID(t *testing.T) {
	logger, logs := newTestLogger()
	handler := LoggerWithOptions(&LoggerOptions{Logger: logger})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, uuid.Nil.String(), logs.All()[0].ContextMap()["req_id"])
}

func TestLoggerNilOptions(t *testing.T) {
	handler := LoggerWithOptions(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}
