package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wanderlist/imagebackfill/internal/api"
	"github.com/wanderlist/imagebackfill/internal/app"
)

// Command creates the serve command, which exposes the backfill trigger over HTTP.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backfill trigger, health check and metrics over HTTP",
		Long: `Start an HTTP server exposing:

  POST /api/v1/backfill   run one backfill and return its report
  GET  /api/v1/health     liveness check
  GET  /metrics           Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, err := app.New(sigCtx, ctx.Settings, ctx.Module("app"))
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()

			server, err := api.New(api.ConfigFromSettings(ctx.Settings), runner,
				api.WithLogger(ctx.Module("api")),
				api.WithMetricsHandler(runner.Metrics().Handler()),
				api.WithVersion(ctx.Build.GetVersion()),
			)
			if err != nil {
				return err
			}
			return server.Serve(sigCtx)
		},
	}

	cmd.Flags().String("listen", "", "Listen address, e.g. :8080 (overrides server.listen)")
	return cmd
}
