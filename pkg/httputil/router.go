package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/util"
	"go.uber.org/zap"
)

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	err        error
	parent     *Router
	prefix     string
	middleware []Middleware
	mu         *sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		server: &http.Server{},
		logger: zap.NewNop(),
		mu:     &sync.RWMutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithLogger(l *zap.Logger) RouterOptions {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithTLS serves HTTPS with the given key pair. Empty paths generate a self-signed
// certificate under ./tls. A failure is reported by ListenAndServe.
func WithTLS(certFile, keyFile string) RouterOptions {
	return func(r *Router) {
		if certFile == "" || keyFile == "" {
			certFile, keyFile = "./tls/tls.crt", "./tls/tls.key"
		}
		cert, err := util.LoadOrGenerateCert(certFile, keyFile)
		if err != nil {
			r.err = fmt.Errorf("tls certificate: %w", err)
			return
		}
		r.server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added. On the root router they
// wrap the whole mux, unmatched routes included; on a group they wrap the group's routes
// registered afterwards.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group creates a new sub-router with a specified prefix. Routes on the group run the
// middleware of every enclosing group.
func (r *Router) Group(prefix string) *Router {
	return &Router{
		mux:    r.mux,
		server: r.server,
		logger: r.logger,
		parent: r,
		prefix: r.prefix + prefix,
		mu:     &sync.RWMutex{},
	}
}

func (r *Router) root() *Router {
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// routeMiddleware collects group middleware, outermost first. The root's middleware is
// applied once around the mux instead.
func (r *Router) routeMiddleware() []Middleware {
	if r.parent == nil {
		return nil
	}
	r.mu.RLock()
	own := slices.Clone(r.middleware)
	r.mu.RUnlock()
	return append(r.parent.routeMiddleware(), own...)
}

// Handle registers an HTTP handler for a `METHOD /pattern` as introduced in
// [Routing Enhancements for Go 1.22](https://go.dev/blog/routing-enhancements).
// On a route group with a /prefix it resolves to `METHOD /prefix/pattern`.
// A pattern without a method panics, as http.ServeMux does for invalid patterns.
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok {
		panic(fmt.Sprintf("invalid method pattern: %s", methodPattern))
	}

	mws := r.routeMiddleware()
	finalHandler := handler
	for i := len(mws) - 1; i >= 0; i-- {
		finalHandler = mws[i](finalHandler)
	}
	r.mux.Handle(fmt.Sprintf("%s %s%s", method, r.prefix, pattern), finalHandler)
}

// HandleFunc is Handle for a plain function.
func (r *Router) HandleFunc(methodPattern string, handler http.HandlerFunc) {
	r.Handle(methodPattern, handler)
}

// ServeHTTP lets a Router be used as a plain handler, e.g. under httptest.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.root().applyMiddleware().ServeHTTP(w, req)
}

// ListenAndServe starts the server, automatically choosing between HTTP and HTTPS based on TLS config.
func (r *Router) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (r *Router) Serve(ln net.Listener) error {
	if r.err != nil {
		ln.Close()
		return r.err
	}
	r.server.Handler = r.root().applyMiddleware()
	r.server.Addr = ln.Addr().String()

	if r.server.TLSConfig != nil {
		r.logger.Info("starting server", zap.String("addr", r.server.Addr), zap.Bool("tls", true))
		return r.server.ServeTLS(ln, "", "")
	}
	r.logger.Info("starting server", zap.String("addr", r.server.Addr))
	return r.server.Serve(ln)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (r *Router) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := r.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

const shutdownTimeout = 10 * time.Second

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down server")
	return r.server.Shutdown(ctx)
}

// Addr is the listen address once serving.
func (r *Router) Addr() string {
	return r.server.Addr
}

// applyMiddleware applies middleware to the http.Handler and returns a new http.Handler.
func (r *Router) applyMiddleware() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handler http.Handler = r.mux
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	return handler
}
