// Package pumpdemo is the pumpdemo command line: dashboard, station, SEMP proxy and
// an all-in-one demo.
package pumpdemo

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgeflare/pumpdemo/pkg/config"
	"github.com/edgeflare/pumpdemo/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags "-X ...pumpdemo.Version=...".
var Version = "dev"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pumpdemo",
	Short: "Gas-station pump demo over a pub/sub broker",
	Long: `pumpdemo runs a dashboard and simulated gas stations that talk over MQTT (or NATS)
on session-scoped topics, plus a small proxy for the broker's SEMP management API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
		if logger, err = util.NewLogger(logLevel); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(Version)
			return
		}
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pumpdemo.yaml)")
	f.StringVarP(&logLevel, "log-level", "L", util.GetEnvOrDefault("PUMPDEMO_LOG_LEVEL", "info"), "log at this level (debug, info, warn, error, fatal, none)")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(dashboardCmd, stationCmd, sempProxyCmd, demoCmd)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
