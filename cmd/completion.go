package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkyin/quotio/internal/proxyctl"
)

// authFlowCompletionFunc completes provider names for the login command.
func authFlowCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, flow := range proxyctl.AuthFlows() {
		names = append(names, fmt.Sprintf("%s\t%s", flow, flow.Label()))
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
