package pumpdemo

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/edgeflare/pumpdemo/pkg/config"
	"github.com/edgeflare/pumpdemo/pkg/lifecycle"
	"github.com/edgeflare/pumpdemo/pkg/pump"
	"github.com/edgeflare/pumpdemo/pkg/transport/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var demoFlags struct {
	stations int
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a dashboard and simulated stations in one process",
	Long: `Runs the dashboard and --stations simulated stations over an in-process broker.
The session starts as soon as every station joined; open the dashboard page to
watch the tanks drain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if demoFlags.stations < 1 {
			return errors.New("--stations must be at least 1")
		}
		cfg.Broker.Transport = config.TransportMemory
		dashboardFlags.autoStart = demoFlags.stations

		ctx, cancel := signalContext()
		defer cancel()
		return runDemo(ctx, memory.NewBroker(), demoFlags.stations)
	},
}

func init() {
	demoCmd.Flags().IntVar(&demoFlags.stations, "stations", 3, "number of simulated stations")
	demoCmd.Flags().StringVarP(&dashboardFlags.listenAddr, "listen", "l", "", "dashboard listen address (overrides dashboard.listenAddr)")
}

func runDemo(ctx context.Context, mem *memory.Broker, n int) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	join := func(d *lifecycle.Dashboard) {
		flows := []pump.FlowState{pump.FlowSlow, pump.FlowFast}
		for i := 0; i < n; i++ {
			flow := flows[rand.IntN(len(flows))]
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := runStation(ctx, mem, d.SessionID(), "", "", flow); err != nil {
					logger.Error("demo station", zap.Error(err))
				}
			}()
		}
	}
	return runDashboard(ctx, mem, join)
}
