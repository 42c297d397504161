package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/events"
)

func NewEventsCommand() *cobra.Command {
	var limit int

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent lifecycle events",
		Long: `Show recent worker lifecycle, install and sign-in events.

Events are recorded in a local sqlite database under the base directory,
newest first.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			db, err := events.Open(core.EventsDBPath())
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to open event log: %v", err))
				os.Exit(1)
			}

			proxyEvents, perr := db.RecentProxyEvents(limit)
			installEvents, ierr := db.RecentInstallEvents(limit)
			authEvents, aerr := db.RecentAuthEvents(limit)
			db.Close()

			for _, err := range []error{perr, ierr, aerr} {
				if err != nil {
					slog.Error(fmt.Sprintf("Failed to read event log: %v", err))
					os.Exit(1)
				}
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Println("Worker events:")
				for _, e := range proxyEvents {
					fmt.Printf("  %s  %-12s %s\n", e.Timestamp.Local().Format(time.DateTime), e.EventType, e.Details)
				}
				if len(proxyEvents) == 0 {
					fmt.Println("  (none)")
				}

				fmt.Println("Install events:")
				for _, e := range installEvents {
					fmt.Printf("  %s  %-12s %-10s %s\n", e.Timestamp.Local().Format(time.DateTime), e.EventType, e.Version, e.Details)
				}
				if len(installEvents) == 0 {
					fmt.Println("  (none)")
				}

				fmt.Println("Sign-in events:")
				for _, e := range authEvents {
					fmt.Printf("  %s  %-12s %-10s %s\n", e.Timestamp.Local().Format(time.DateTime), e.EventType, e.Flow, e.Details)
				}
				if len(authEvents) == 0 {
					fmt.Println("  (none)")
				}
			case "json":
				jsonBytes, _ := json.Marshal(map[string]any{
					"proxy":   proxyEvents,
					"install": installEvents,
					"auth":    authEvents,
				})
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	eventsCmd.Flags().IntVarP(&limit, "limit", "L", 20, "Number of events per category")
	eventsCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return eventsCmd
}
