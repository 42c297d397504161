package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
)

func NewRootCommand() *cobra.Command {
	var basePath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "quotio",
		Short: "Quotio - CLI proxy manager",
		Long: `Quotio manages the cli-proxy-api-plus worker binary: download and
install releases, keep the worker config in sync, start and stop the
process, and drive provider sign-in flows.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize config and bind global flags to the config
			messages, err := core.InitializeConfig(cmd)
			for _, message := range messages {
				fmt.Println(message)
			}
			if err != nil {
				return err
			}
			setupLogging(core.Config.GetInt("verbose"))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&basePath, "base-path", filepath.Join(homeDir, core.BaseDirName),
		"base path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewVersionCommand(),
		NewStatusCommand(),
		NewInstallCommand(),
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewToggleCommand(),
		NewLoginCommand(),
		NewPortCommand(),
		NewOpenCommand(),
		NewEventsCommand(),
		NewLogsCommand(),
		NewServeCommand(),
	)

	return rootCmd
}
