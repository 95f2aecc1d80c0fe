package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpdemo_messages_dispatched_total",
			Help: "Total number of messages applied by the dispatcher, by role and kind",
		},
		[]string{"role", "kind"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpdemo_messages_dropped_total",
			Help: "Total number of messages dropped by the dispatcher, by role and reason",
		},
		[]string{"role", "reason"},
	)

	StationsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpdemo_stations_registered",
			Help: "Number of stations known to the dashboard registry",
		},
	)

	TelemetryPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpdemo_telemetry_published_total",
			Help: "Total number of flow telemetry publishes by outcome",
		},
		[]string{"outcome"},
	)

	SEMPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpdemo_semp_requests_total",
			Help: "Total number of SEMP requests by caller and outcome",
		},
		[]string{"caller", "outcome"},
	)

	JournalEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpdemo_journal_entries_total",
			Help: "Total number of journal entries by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pumpdemo_dispatch_duration_seconds",
			Help:    "Duration of message dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)
)

type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string
	Path              string        // defaults to "/metrics"
	ShutdownTimeout   time.Duration // defaults to 5 seconds
	ReadHeaderTimeout time.Duration // defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer serves the default registry until ctx is canceled.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Logger = opts.Logger
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
	}
	logger := effectiveOpts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server stopped")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
