// Package semp talks to the broker's SEMP management API: a forwarding proxy for
// browser callers and a provisioner that creates a queue per station.
package semp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrMissingHost    = errors.New("host_url is required")
	ErrHostNotAllowed = errors.New("host not allowed")
	ErrInvalidPort    = errors.New("invalid port_no")
)

// Request is the envelope a caller posts to the proxy.
type Request struct {
	Method  string            `json:"method"`
	HostURL string            `json:"host_url"`
	PortNo  int               `json:"port_no"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Response carries the upstream reply. Body is the upstream body verbatim, as a string.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type ProxyConfig struct {
	// Scheme used toward the broker, "https" unless set.
	Scheme string `mapstructure:"scheme"`
	// AllowedHosts restricts the hosts a caller may reach. Empty allows any.
	AllowedHosts []string      `mapstructure:"allowedHosts"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Proxy forwards SEMP envelopes to the broker so the browser avoids the management
// API's CORS and auth restrictions. It keeps no state between requests.
type Proxy struct {
	cfg    ProxyConfig
	client *http.Client
	logger *zap.Logger
}

func NewProxy(cfg ProxyConfig, client *http.Client, logger *zap.Logger) *Proxy {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{cfg: cfg, client: client, logger: logger}
}

// Target resolves the upstream URL of an envelope.
func (p *Proxy) Target(req Request) (string, error) {
	host := strings.TrimSpace(req.HostURL)
	if host == "" {
		return "", ErrMissingHost
	}
	scheme := p.cfg.Scheme
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: %q", ErrMissingHost, req.HostURL)
		}
		scheme, host = u.Scheme, u.Host
	}
	if h, port, err := net.SplitHostPort(host); err == nil {
		host = h
		if req.PortNo == 0 {
			req.PortNo, _ = strconv.Atoi(port)
		}
	}
	if req.PortNo < 0 || req.PortNo > 65535 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPort, req.PortNo)
	}
	if len(p.cfg.AllowedHosts) > 0 && !slices.Contains(p.cfg.AllowedHosts, host) {
		return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	if req.PortNo > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(req.PortNo))
	}

	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + host + path, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := httputil.LoggerOr(r, p.logger)

	var env Request
	if err := httputil.BindOrError(r, w, &env); err != nil {
		metrics.SEMPRequests.WithLabelValues("proxy", "bad_request").Inc()
		return
	}
	target, err := p.Target(env)
	if err != nil {
		metrics.SEMPRequests.WithLabelValues("proxy", "bad_request").Inc()
		status := http.StatusBadRequest
		if errors.Is(err, ErrHostNotAllowed) {
			status = http.StatusForbidden
		}
		httputil.Error(w, status, err.Error())
		return
	}
	method := strings.ToUpper(env.Method)
	if method == "" {
		method = http.MethodGet
	}

	cfg := httputil.DefaultRequestConfig(method, target)
	cfg.Client = p.client
	cfg.Timeout = p.cfg.Timeout
	cfg.RetryEnabled = false
	cfg.Logger = logger
	cfg.Headers = make(map[string][]string, len(env.Headers))
	for k, v := range env.Headers {
		cfg.Headers[k] = []string{v}
	}

	var payload any
	if len(env.Body) > 0 && string(env.Body) != "null" {
		payload = env.Body
	}

	resp, err := httputil.Request(r.Context(), cfg, payload)
	if resp == nil {
		metrics.SEMPRequests.WithLabelValues("proxy", "upstream_error").Inc()
		logger.Warn("semp upstream unreachable", zap.String("target", target), zap.Error(err))
		httputil.Error(w, http.StatusBadGateway, "semp upstream unavailable")
		return
	}

	// non-2xx upstream replies are passed through to the caller
	metrics.SEMPRequests.WithLabelValues("proxy", outcome(resp.StatusCode)).Inc()
	logger.Debug("semp forwarded",
		zap.String("method", method), zap.String("target", target), zap.Int("status", resp.StatusCode))

	headers := map[string]string{"Content-Type": "application/json"}
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		headers["Content-Type"] = ct
	}
	httputil.JSON(w, http.StatusOK, Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(resp.Body),
	})
}

func outcome(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status >= 400 && status < 500:
		return "client_error"
	default:
		return "server_error"
	}
}
