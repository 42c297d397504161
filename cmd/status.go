package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/manager"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker and installation status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := manager.New()
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to initialize: %v", err))
				os.Exit(1)
			}
			status := m.Status()
			m.Close()

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				renderStatusText(status)
			case "json":
				jsonBytes, _ := json.Marshal(status)
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

func renderStatusText(status manager.AppStatus) {
	proxy := status.Proxy
	if proxy.Running {
		age := time.Since(proxy.StartedAt).Round(time.Second)
		fmt.Printf("Worker: running (PID %d, up %s)\n", proxy.PID, age)
		if proxy.Listening {
			fmt.Printf("  Endpoint: %s\n", proxy.Endpoint)
		} else {
			fmt.Printf("  Endpoint: %s (port not open yet)\n", proxy.Endpoint)
		}
	} else {
		fmt.Println("Worker: stopped")
	}
	if proxy.LastError != "" {
		fmt.Printf("  Last error: %s\n", proxy.LastError)
	}

	install := status.Install
	switch {
	case install.Installed && install.Version != "":
		fmt.Printf("Binary: %s (version %s)\n", install.BinaryPath, install.Version)
	case install.Installed:
		fmt.Printf("Binary: %s\n", install.BinaryPath)
	default:
		fmt.Println("Binary: not installed (run 'quotio install')")
	}
}
