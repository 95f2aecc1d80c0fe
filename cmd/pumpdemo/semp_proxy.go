package pumpdemo

import (
	"net/http"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/edgeflare/pumpdemo/pkg/httputil/middleware"
	"github.com/edgeflare/pumpdemo/pkg/semp"
	"github.com/spf13/cobra"
)

var sempFlags struct {
	listenAddr string
	upstream   string
	username   string
	password   string
}

var sempProxyCmd = &cobra.Command{
	Use:   "semp-proxy",
	Short: "Forward SEMP management requests to the broker",
	Long: `Serves POST / with a {method, host_url, port_no, path, headers, body} envelope and
returns {statusCode, headers, body}, so a browser can reach the broker's SEMP API
despite its CORS and auth restrictions. With --upstream, /raw/... is reverse
proxied to that SEMP endpoint using the given credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		r := httputil.NewRouter(httputil.WithLogger(logger.Named("http")))
		r.Use(
			middleware.RequestID,
			middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: logger.Named("http")}),
			middleware.CORSWithOptions(nil),
		)
		r.Handle("POST /", semp.NewProxy(cfg.SEMP.Proxy, nil, logger.Named("semp")))
		r.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
			httputil.Text(w, http.StatusOK, "ok")
		})

		if sempFlags.upstream != "" {
			raw, err := middleware.Proxy(sempFlags.upstream, middleware.ProxyOptions{
				Logger:     logger.Named("semp"),
				TrimPrefix: "/raw",
				Username:   sempFlags.username,
				Password:   sempFlags.password,
			})
			if err != nil {
				return err
			}
			for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
				r.Handle(m+" /raw/", raw)
			}
		}

		addr := cfg.SEMP.ListenAddr
		if sempFlags.listenAddr != "" {
			addr = sempFlags.listenAddr
		}
		return r.Run(ctx, addr)
	},
}

func init() {
	f := sempProxyCmd.Flags()
	f.StringVarP(&sempFlags.listenAddr, "listen", "l", "", "listen address (overrides semp.listenAddr)")
	f.StringVar(&sempFlags.upstream, "upstream", "", "SEMP base URL for the /raw reverse proxy, e.g. https://broker:943")
	f.StringVar(&sempFlags.username, "username", "", "SEMP username for the /raw reverse proxy")
	f.StringVar(&sempFlags.password, "password", "", "SEMP password for the /raw reverse proxy")
}
