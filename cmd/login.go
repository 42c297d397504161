package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/manager"
	"github.com/jkyin/quotio/internal/proxyctl"
)

func NewLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login <provider>",
		Short: "Run a provider sign-in flow",
		Long: `Run a provider sign-in flow through the worker binary.

The worker opens the provider's page in your browser and stores the OAuth
tokens in the auth directory. Flows that print a device code get it copied
to the clipboard.

Providers:
  gemini     Gemini
  codex      Codex
  claude     Claude
  qwen       Qwen
  iflow      iFlow
  kiro-aws   Kiro (AWS Builder ID)

Examples:
  quotio login codex
  quotio login kiro-aws`,
		Aliases:           []string{"auth"},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: authFlowCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			flow, err := proxyctl.ParseAuthFlow(args[0])
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}

			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}

			if !m.Installer.State().Installed {
				m.Close()
				slog.Error("Worker binary is not installed. Use 'quotio install' first.")
				os.Exit(1)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			slog.Info(fmt.Sprintf("Starting %s sign-in...", flow.Label()))
			result := m.Auth.Run(ctx, flow)
			if !result.Success {
				m.Close()
				slog.Error(result.Message)
				os.Exit(1)
			}
			slog.Info(result.Message)

			// A handoff result leaves the helper waiting for the browser
			// dance to finish. Hold this process open until it exits,
			// otherwise the helper dies with us.
			if m.Auth.SessionActive() {
				slog.Info("Waiting for the sign-in to finish, press Ctrl+C to abort...")
				for m.Auth.SessionActive() {
					select {
					case <-ctx.Done():
						m.Close()
						slog.Warn("Sign-in aborted")
						os.Exit(1)
					case <-time.After(500 * time.Millisecond):
					}
				}
				slog.Info(fmt.Sprintf("%s sign-in finished.", flow.Label()))
			}

			m.Close()
		},
	}
}
