package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/manager"
	"github.com/jkyin/quotio/internal/proxyctl"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the worker",
		Long: `Start the cli-proxy-api-plus worker in the background.

The worker keeps running after quotio exits. Its PID is recorded in the
state file so later invocations find it again, and its output goes to
logs/worker.log under the base directory.

If the worker is already running, this command reports where it listens.`,
		Aliases: []string{"up"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			if st := m.Supervisor.Status(); st.Running {
				m.Close()
				slog.Info(fmt.Sprintf("Worker is already running (PID %d) at %s", st.PID, st.Endpoint))
				return
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// This process exits right after the confirmation window, so
			// the worker cannot hold a pipe into it.
			m.Supervisor.DetachOutput = core.WorkerLogPath()

			err = m.Supervisor.Start(ctx)
			if err != nil {
				m.Close()
				if errors.Is(err, proxyctl.ErrBinaryNotFound) {
					slog.Error("Worker binary is not installed. Use 'quotio install' first.")
				} else {
					slog.Error(fmt.Sprintf("Failed to start worker: %v", err))
				}
				os.Exit(1)
			}

			st := m.Supervisor.Status()
			m.Close()
			slog.Info(fmt.Sprintf("Worker started (PID %d) at %s", st.PID, st.Endpoint))
		},
	}
}
