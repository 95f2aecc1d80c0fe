package pumpdemo

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/edgeflare/pumpdemo/pkg/api"
	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/edgeflare/pumpdemo/pkg/journal"
	"github.com/edgeflare/pumpdemo/pkg/lifecycle"
	"github.com/edgeflare/pumpdemo/pkg/semp"
	"github.com/edgeflare/pumpdemo/pkg/transport/memory"
	"github.com/edgeflare/pumpdemo/pkg/util/rand"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dashboardFlags struct {
	session    string
	listenAddr string
	autoStart  int
	user       string
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open a session and serve the dashboard API",
	Long: `Opens a new session on the broker, prints the join URL, and serves the
dashboard API and page. Stations join by scanning the QR code or with
"pumpdemo station --session <id>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dashboardFlags.session != "" {
			if err := checkID("session", dashboardFlags.session); err != nil {
				return err
			}
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runDashboard(ctx, nil, nil)
	},
}

func init() {
	f := dashboardCmd.Flags()
	f.StringVar(&dashboardFlags.session, "session", "", "session id (generated when empty)")
	f.StringVarP(&dashboardFlags.listenAddr, "listen", "l", "", "dashboard listen address (overrides dashboard.listenAddr)")
	f.IntVar(&dashboardFlags.autoStart, "auto-start", 0, "broadcast start once this many stations joined (0 waits for POST /start)")
	f.StringVar(&dashboardFlags.user, "basic-auth-user", "", "protect start/stop with this user and a generated password")
}

// runDashboard serves until ctx is done. onOpen runs once the login channel is
// subscribed.
func runDashboard(ctx context.Context, mem *memory.Broker, onOpen func(*lifecycle.Dashboard)) error {
	var wg sync.WaitGroup
	startMetrics(ctx, &wg)
	defer wg.Wait()

	t, err := connect(ctx, cfg.Broker, "dashboard", mem)
	if err != nil {
		return err
	}
	defer t.Disconnect()

	rec, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal(rec)

	d := lifecycle.NewDashboard(t, lifecycle.DashboardConfig{
		SessionID:     dashboardFlags.session,
		Namespace:     cfg.Topics,
		MobileBaseURL: cfg.Session.MobileBaseURL,
	}, dashboardOptions(rec)...)
	if err := d.Open(ctx); err != nil {
		return err
	}
	defer d.Close()

	logger.Info("join the session",
		zap.String("sessionID", d.SessionID()),
		zap.String("mobileURL", d.MobileURL()),
		zap.String("qrCode", d.QRCodeURL()))

	if onOpen != nil {
		onOpen(d)
	}
	if dashboardFlags.autoStart > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			autoStart(ctx, d, dashboardFlags.autoStart)
		}()
	}

	return serveDashboard(ctx, d)
}

func dashboardOptions(rec *journal.Recorder) []lifecycle.Option {
	opts := []lifecycle.Option{
		lifecycle.WithLogger(logger.Named("dashboard")),
		lifecycle.WithJournal(rec),
	}
	if !cfg.SEMP.Provision {
		return opts
	}
	p, err := semp.NewProvisioner(cfg.SEMP.Provisioner, nil, logger.Named("semp"))
	if err != nil {
		logger.Warn("queue provisioning disabled", zap.Error(err))
		return opts
	}
	return append(opts, lifecycle.WithProvisioner(p))
}

func serveDashboard(ctx context.Context, d *lifecycle.Dashboard) error {
	apiCfg := cfg.Dashboard.API
	if dashboardFlags.user != "" {
		password := rand.NewPassword()
		apiCfg.BasicAuth = map[string]string{dashboardFlags.user: password}
		logger.Info("start/stop require basic auth",
			zap.String("user", dashboardFlags.user), zap.String("password", password))
	}

	var opts []httputil.RouterOptions
	if cfg.Dashboard.TLS.Enabled {
		opts = append(opts, httputil.WithTLS(cfg.Dashboard.TLS.CertFile, cfg.Dashboard.TLS.KeyFile))
	}
	r := api.NewRouter(d, apiCfg, logger.Named("api"), opts...)

	addr := cfg.Dashboard.ListenAddr
	if dashboardFlags.listenAddr != "" {
		addr = dashboardFlags.listenAddr
	}
	if err := r.Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// autoStart polls until n stations joined, then broadcasts start.
func autoStart(ctx context.Context, d *lifecycle.Dashboard, n int) {
	if err := waitFor(ctx, func() bool { return d.StationsLength() >= n }); err != nil {
		return
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("auto start", zap.Error(err))
	}
}
