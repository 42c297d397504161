package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{},
		Short:   "Show version",
		Long:    `Show version of the quotio CLI and of a resident serve instance (if running)`,
		Run: func(cmd *cobra.Command, args []string) {
			clientVersion := core.Version
			clientFormatted := core.FormatVersion(clientVersion)
			fmt.Fprintf(os.Stderr, "Client version: %s\n", clientFormatted)

			serveVersion, err := fetchServeVersion()
			if err != nil {
				fmt.Fprintln(os.Stderr, "Serve API: not running")
				return
			}

			serveFormatted := core.FormatVersion(serveVersion)
			fmt.Fprintf(os.Stderr, "Serve version: %s\n", serveFormatted)

			if clientVersion != serveVersion {
				slog.Warn(fmt.Sprintf("Version mismatch! Client %s and serve %s versions differ. Consider restarting 'quotio serve'.", clientFormatted, serveFormatted))
			}
		},
	}

	return versionCmd
}

// fetchServeVersion asks a resident serve instance for its version.
func fetchServeVersion() (string, error) {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/status", core.GetManagerListenAddr()))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status struct {
		Version string `json:"app_version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", err
	}
	return status.Version, nil
}
