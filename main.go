package main

import (
	"fmt"
	"os"

	"github.com/jkyin/quotio/cmd"
)

func main() {
	// If no command specified, default to status. A desktop shell that set
	// QUOTIO_MONITOR_PID wants the resident API instead.
	if len(os.Args) == 1 {
		if os.Getenv("QUOTIO_MONITOR_PID") != "" {
			os.Args = []string{os.Args[0], "serve"}
		} else {
			os.Args = []string{os.Args[0], "status"}
		}
	}

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
