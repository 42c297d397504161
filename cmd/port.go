package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/manager"
)

func NewPortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "port [port]",
		Short: "Show or change the worker port",
		Long: `Show or change the port the worker listens on.

Without arguments the configured port is printed. With a port number the
setting is saved and synced into the worker config; a running worker picks
it up on its next restart.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				fmt.Println(core.GetPort())
				return
			}

			port, err := strconv.Atoi(args[0])
			if err != nil {
				slog.Error(fmt.Sprintf("Invalid port %q", args[0]))
				os.Exit(1)
			}

			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			err = m.SetPort(port)
			wasRunning := m.Supervisor.Status().Running
			m.Close()

			if err != nil {
				slog.Error(fmt.Sprintf("Failed to set port: %v", err))
				os.Exit(1)
			}

			slog.Info(fmt.Sprintf("Worker port set to %d", port))
			if wasRunning {
				slog.Info("Restart the worker with 'quotio restart' to apply it")
			}
		},
	}
}
