package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
)

func NewLogsCommand() *cobra.Command {
	var lines int
	var follow bool

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Show recent worker output",
		Long: `Show recent output captured from the worker process.

Worker output is captured by a resident 'quotio serve' instance; this
command asks it for its buffer. A worker started with 'quotio start' writes
to logs/worker.log under the base directory instead.

Examples:
  quotio logs          # Show the last 50 lines
  quotio logs -L 200   # Show the last 200 lines
  quotio logs -f       # Follow live output, Ctrl+C to exit`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if follow {
				followLogs(cmd, lines)
				return
			}

			client := &http.Client{Timeout: 2 * time.Second}
			url := fmt.Sprintf("http://%s/api/logs?lines=%d", core.GetManagerListenAddr(), lines)
			resp, err := client.Get(url)
			if err != nil {
				slog.Error("Serve mode is not running. Use 'quotio serve' to capture worker output.")
				os.Exit(1)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				slog.Error(fmt.Sprintf("Logs endpoint returned %d", resp.StatusCode))
				os.Exit(1)
			}

			var payload struct {
				Lines []string `json:"lines"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				slog.Error(fmt.Sprintf("Failed to decode logs response: %v", err))
				os.Exit(1)
			}

			for _, line := range payload.Lines {
				fmt.Println(line)
			}
		},
	}

	logsCmd.Flags().IntVarP(&lines, "lines", "L", 50, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow live output")

	return logsCmd
}

// followLogs streams worker output from a resident serve instance until the
// user interrupts or the connection drops.
func followLogs(cmd *cobra.Command, lines int) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	url := fmt.Sprintf("http://%s/api/logs/stream?lines=%d", core.GetManagerListenAddr(), lines)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Error(fmt.Sprintf("Failed to build logs request: %v", err))
		os.Exit(1)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Error("Serve mode is not running. Use 'quotio serve' to capture worker output.")
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error(fmt.Sprintf("Logs endpoint returned %d", resp.StatusCode))
		os.Exit(1)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}

	if ctx.Err() != nil {
		fmt.Println("\nDisconnected from worker logs.")
		return
	}
	fmt.Println("Connection to serve mode lost.")
}
