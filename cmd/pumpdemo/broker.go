package pumpdemo

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeflare/pumpdemo/pkg/config"
	"github.com/edgeflare/pumpdemo/pkg/journal"
	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"github.com/edgeflare/pumpdemo/pkg/transport"
	"github.com/edgeflare/pumpdemo/pkg/transport/memory"
	"github.com/edgeflare/pumpdemo/pkg/transport/mqtt"
	"github.com/edgeflare/pumpdemo/pkg/transport/nats"
	"github.com/edgeflare/pumpdemo/pkg/util/rand"
	"go.uber.org/zap"
)

// connect dials the configured broker. The memory transport only exists inside one
// process, so it is reserved for the demo command, which passes its own broker.
func connect(ctx context.Context, bc config.BrokerConfig, role string, mem *memory.Broker) (transport.Transport, error) {
	var t transport.Transport
	switch bc.Transport {
	case config.TransportMQTT:
		opts := bc.MQTT
		if opts.ClientID == "" {
			opts.ClientID = "pumpdemo-" + role + "-" + rand.NewName()
		}
		c, err := mqtt.NewClient(opts, logger.Named("mqtt"))
		if err != nil {
			return nil, err
		}
		t = c
	case config.TransportNATS:
		nc := bc.NATS
		if nc.Name == "" {
			nc.Name = "pumpdemo-" + role
		}
		t = nats.NewClient(nc, logger.Named("nats"))
	case config.TransportMemory:
		if mem == nil {
			return nil, fmt.Errorf("%w: memory transport is only available to the demo command", config.ErrUnknownTransport)
		}
		t = mem.Client()
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownTransport, bc.Transport)
	}

	if err := t.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s broker: %w", bc.Transport, err)
	}
	return t, nil
}

// openJournal returns nil when the journal is disabled.
func openJournal(ctx context.Context) (*journal.Recorder, error) {
	rec, err := journal.New(ctx, cfg.Journal, logger.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return rec, nil
}

func closeJournal(rec *journal.Recorder) {
	if err := rec.Close(); err != nil {
		logger.Warn("close journal", zap.Error(err))
	}
}

// startMetrics serves Prometheus metrics until ctx is done when enabled.
func startMetrics(ctx context.Context, wg *sync.WaitGroup) {
	if !cfg.Metrics.Enabled {
		return
	}
	metrics.StartPrometheusServer(ctx, wg, &metrics.PromServerOpts{
		Logger: logger.Named("metrics"),
		Addr:   cfg.Metrics.Addr,
	})
}
