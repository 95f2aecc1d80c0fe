// Package middleware provides the HTTP middleware used by the dashboard API and the
// SEMP proxy: request ids, access logs, CORS, basic auth, static files, and a
// reverse proxy.
package middleware

import (
	"net/http"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
)

// Chain applies middlewares so that the first one listed is the outermost wrapper.
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
