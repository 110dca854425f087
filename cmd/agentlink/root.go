package main

import (
	"github.com/spf13/cobra"

	"github.com/morezero/agent-link/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentlink",
		Short: "Agent to editor command bridge",
		Long: `agentlink exposes editor operations to external agents over a framed
TCP or WebSocket connection. Without a subcommand it serves.

Environment: AGENTLINK_LISTEN_ADDR (default 127.0.0.1:9870), HTTP_PORT,
AGENTLINK_PROJECT_FILE, COMMS_URL, DATABASE_URL, MIGRATION_PATH, LOG_LEVEL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run()
		},
	}
	root.AddCommand(
		newServeCmd(),
		newCallCmd(),
		newCommandsCmd(),
		newMigrateCmd(),
		newEnsureDBCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge (agent listener, admin HTTP, optional NATS mirror and audit sink)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run()
		},
	}
}
