package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/manager"
)

func NewServeCommand() *cobra.Command {
	var listen string
	var exitWithParent bool
	var stopProxyOnExit bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resident control API",
		Long: `Run quotio as a resident process exposing the local control API.

The desktop shell runs this mode and drives everything over HTTP. While
resident, worker output is captured for 'quotio logs' and changes to the
worker config on disk are picked up.

Endpoints:
  GET  /healthz
  GET  /api/status
  POST /api/start | /api/stop | /api/restart | /api/toggle
  POST /api/install
  GET  /api/auth
  POST /api/auth/{provider}
  GET  /api/events
  GET  /api/logs | /api/logs/stream

When QUOTIO_MONITOR_PID is set the process follows that PID and exits when
it dies, so the API never outlives the desktop app that spawned it. On
shutdown the worker keeps running unless --stop-proxy-on-exit is given; it
is re-adopted on the next run.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			setupServeLogging(core.Config.GetInt("verbose"))

			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err = m.Serve(ctx, manager.ServeOptions{
				Addr:            listen,
				ExitWithParent:  exitWithParent,
				StopProxyOnExit: stopProxyOnExit,
			})
			m.Close()

			if err != nil {
				slog.Error(fmt.Sprintf("Control API failed: %v", err))
				os.Exit(1)
			}
		},
	}

	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from settings)")
	serveCmd.Flags().BoolVar(&exitWithParent, "exit-with-parent", false, "Shut down when the parent process dies")
	serveCmd.Flags().BoolVar(&stopProxyOnExit, "stop-proxy-on-exit", false, "Also stop the worker on shutdown")

	return serveCmd
}
