package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/proxyconfig"
)

func NewOpenCommand() *cobra.Command {
	var management bool

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Open the worker endpoint in the browser",
		Long: `Open the worker endpoint in the default browser.

With --management the worker's management UI is opened instead of the API
root.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			store := proxyconfig.NewStore(core.WorkerConfigPath())
			host := store.Host("127.0.0.1")
			port := store.Port(core.GetPort())

			url := proxyconfig.Endpoint(host, port)
			if management {
				url = proxyconfig.ManagementURL(host, port)
			}

			slog.Info(fmt.Sprintf("Opening %s", url))
			if err := browser.OpenURL(url); err != nil {
				slog.Error(fmt.Sprintf("Failed to open browser: %v", err))
				os.Exit(1)
			}
		},
	}
	openCmd.Flags().BoolVarP(&management, "management", "m", false, "Open the management UI")

	return openCmd
}
