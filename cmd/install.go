package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/manager"
)

func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the latest worker release",
		Long: `Download and install the latest cli-proxy-api-plus release.

Fetches release metadata from GitHub, picks the binary matching this
platform and installs it under the base directory. An already installed
binary is replaced; a running worker keeps the old binary until its next
restart.`,
		Aliases: []string{"update", "upgrade"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			m.Installer.OnProgress = func(p float64) {
				fmt.Fprintf(os.Stderr, "\rInstalling... %3.0f%%", p*100)
			}

			state, err := m.Installer.InstallLatest(ctx)
			fmt.Fprintln(os.Stderr)

			wasRunning := m.Supervisor.Status().Running
			m.Close()

			if err != nil {
				slog.Error(fmt.Sprintf("Install failed: %v", err))
				os.Exit(1)
			}

			slog.Info(fmt.Sprintf("Installed worker %s at %s", state.Version, state.BinaryPath))
			if wasRunning {
				slog.Info("Restart the worker with 'quotio restart' to pick it up")
			}
		},
	}
}
