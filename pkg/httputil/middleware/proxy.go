package middleware

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ProxyOptions configures a reverse proxy to one upstream.
type ProxyOptions struct {
	TLSConfig  *tls.Config
	Logger     *zap.Logger
	TrimPrefix string
	// Username and Password, when set, replace the caller's Authorization header
	// so upstream credentials never reach the browser.
	Username string
	Password string
}

// Proxy forwards requests to target, rewriting the path and Host.
func Proxy(target string, opts ProxyOptions) (http.Handler, error) {
	targetURL, err := url.Parse(target)
	if err != nil || targetURL.Scheme == "" || targetURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q", target)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{ServerName: targetURL.Hostname(), MinVersion: tls.VersionTLS12}
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if opts.TrimPrefix != "" {
				pr.Out.URL.Path = strings.TrimPrefix(pr.Out.URL.Path, opts.TrimPrefix)
				pr.Out.URL.RawPath = ""
			}
			pr.SetURL(targetURL)
			pr.SetXForwarded()
			if opts.Username != "" {
				pr.Out.SetBasicAuth(opts.Username, opts.Password)
			}
		},
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: opts.TLSConfig,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("upstream request failed", zap.String("target", target), zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
	return proxy, nil
}
