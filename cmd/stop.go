package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/manager"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the worker",
		Long: `Stop the cli-proxy-api-plus worker.

The worker gets SIGTERM and a grace period before it is killed. Any
in-flight sign-in session is terminated as well.`,
		Aliases: []string{"down", "shutdown"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			if !m.Supervisor.Status().Running {
				m.Close()
				slog.Warn("Worker is not running")
				return
			}

			err = m.Supervisor.Stop()
			m.Close()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to stop worker: %v", err))
				os.Exit(1)
			}

			slog.Info("Worker stopped")
		},
	}
}
