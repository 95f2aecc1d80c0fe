// Package api exposes the dashboard session over HTTP: session details for the QR
// landing page, the station list, and the start and stop controls.
package api

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/edgeflare/pumpdemo/pkg/httputil/middleware"
	"github.com/edgeflare/pumpdemo/pkg/lifecycle"
	"github.com/edgeflare/pumpdemo/pkg/registry"
	"go.uber.org/zap"
)

//go:embed web
var webFS embed.FS

type Config struct {
	CORS *middleware.CORSOptions `mapstructure:"cors"`
	// BasicAuth protects the start and stop controls when non-empty.
	BasicAuth map[string]string `mapstructure:"basicAuth"`
	// UI serves the embedded dashboard page at /.
	UI bool `mapstructure:"ui"`
}

// Dashboard is the part of lifecycle.Dashboard the API drives.
type Dashboard interface {
	SessionID() string
	MobileURL() string
	QRCodeURL() string
	State() lifecycle.DashboardState
	CanStart() bool
	StationsLength() int
	Stations() []registry.Station
	Station(id string) (registry.Station, bool)
	Start(ctx context.Context) error
	StopStation(ctx context.Context, id string) error
}

type Session struct {
	SessionID string                   `json:"sessionId"`
	MobileURL string                   `json:"mobileUrl"`
	QRCodeURL string                   `json:"qrCodeUrl"`
	State     lifecycle.DashboardState `json:"state"`
	CanStart  bool                     `json:"canStart"`
	Stations  int                      `json:"stations"`
}

type handlers struct {
	d Dashboard
}

// NewRouter builds the API router around d. opts configure the underlying server,
// e.g. httputil.WithTLS.
func NewRouter(d Dashboard, cfg Config, logger *zap.Logger, opts ...httputil.RouterOptions) *httputil.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{d: d}

	r := httputil.NewRouter(append([]httputil.RouterOptions{httputil.WithLogger(logger)}, opts...)...)
	r.Use(
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: logger.Named("http")}),
		middleware.CORSWithOptions(cfg.CORS),
	)

	r.HandleFunc("GET /healthz", h.healthz)
	r.HandleFunc("GET /session", h.session)
	r.HandleFunc("GET /stations", h.stations)
	r.HandleFunc("GET /stations/{id}", h.station)

	control := r.Group("")
	if len(cfg.BasicAuth) > 0 {
		control.Use(middleware.VerifyBasicAuth(middleware.BasicAuthCreds(cfg.BasicAuth)))
	}
	control.HandleFunc("POST /start", h.start)
	control.HandleFunc("POST /stations/{id}/stop", h.stop)

	if cfg.UI {
		sub, _ := fs.Sub(webFS, "web")
		r.Handle("GET /", middleware.Static(sub, false))
	}
	return r
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.Text(w, http.StatusOK, "ok")
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, Session{
		SessionID: h.d.SessionID(),
		MobileURL: h.d.MobileURL(),
		QRCodeURL: h.d.QRCodeURL(),
		State:     h.d.State(),
		CanStart:  h.d.CanStart(),
		Stations:  h.d.StationsLength(),
	})
}

func (h *handlers) stations(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.d.Stations())
}

func (h *handlers) station(w http.ResponseWriter, r *http.Request) {
	st, ok := h.d.Station(r.PathValue("id"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, "station not found")
		return
	}
	httputil.JSON(w, http.StatusOK, st)
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	err := h.d.Start(r.Context())
	switch {
	case err == nil:
		httputil.LoggerFrom(r).Info("session start requested")
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, lifecycle.ErrNoStations), errors.Is(err, lifecycle.ErrAlreadyStarted), errors.Is(err, lifecycle.ErrNotOpen):
		httputil.Error(w, http.StatusConflict, err.Error())
	default:
		httputil.LoggerFrom(r).Error("start session", zap.Error(err))
		httputil.Error(w, http.StatusBadGateway, err.Error())
	}
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	err := h.d.StopStation(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, lifecycle.ErrUnknownStation):
		httputil.Error(w, http.StatusNotFound, err.Error())
	default:
		httputil.LoggerFrom(r).Error("stop station", zap.Error(err))
		httputil.Error(w, http.StatusBadGateway, err.Error())
	}
}
