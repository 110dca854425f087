package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morezero/agent-link/internal/server"
	"github.com/morezero/agent-link/pkg/transport"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentlink version and wire protocol version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentlink version %s (protocol %d)\n", server.Version, transport.DefaultProtocolVersion)
		},
	}
}
