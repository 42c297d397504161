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

func NewToggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Start the worker if stopped, stop it if running",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			m.Supervisor.DetachOutput = core.WorkerLogPath()
			err = m.Supervisor.Toggle(ctx)
			st := m.Supervisor.Status()
			m.Close()

			if err != nil {
				slog.Error(fmt.Sprintf("Toggle failed: %v", err))
				os.Exit(1)
			}

			if st.Running {
				slog.Info(fmt.Sprintf("Worker started (PID %d) at %s", st.PID, st.Endpoint))
			} else {
				slog.Info("Worker stopped")
			}
		},
	}
}
