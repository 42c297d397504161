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

func NewRestartCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the worker",
		Long: `Restart the cli-proxy-api-plus worker.

The running worker is stopped and a new one is started against the current
config, which is how port changes and freshly installed binaries take
effect.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			if !m.Supervisor.Status().Running {
				m.Close()
				if !quiet {
					slog.Error("Worker is not running. Use 'quotio start' instead.")
				}
				os.Exit(1)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if !quiet {
				slog.Info("Restarting worker...")
			}

			m.Supervisor.DetachOutput = core.WorkerLogPath()
			err = m.Supervisor.Restart(ctx)
			st := m.Supervisor.Status()
			m.Close()

			if err != nil {
				if !quiet {
					slog.Error(fmt.Sprintf("Failed to restart worker: %v", err))
				}
				os.Exit(1)
			}

			if !quiet {
				slog.Info(fmt.Sprintf("Worker restarted (PID %d) at %s", st.PID, st.Endpoint))
			}
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output")

	return cmd
}
