package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ccdb/pkg/changetrack"
	"github.com/Sumatoshi-tech/ccdb/pkg/mcp"
	"github.com/Sumatoshi-tech/ccdb/pkg/observability"
	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
)

const (
	mcpUse   = "mcp"
	mcpShort = "Start MCP server for AI agent integration"
	mcpLong  = `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes ccdb as tools that AI agents can discover and invoke:
  - ccdb_ingest: Parse a compile_commands.json and infer its cross toolchain
  - ccdb_changed: Check whether a compile_commands.json changed since it was last consumed

Logs are written to stderr as JSON. With --memory-store, change records live
only as long as the server.`

	flagMemoryStore = "memory-store"
)

func newMCPCommand(globals *globalFlags) *cobra.Command {
	var memoryStore bool

	cmd := &cobra.Command{
		Use:   mcpUse,
		Short: mcpShort,
		Long:  mcpLong,
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			rt, err := globals.setup(cobraCmd, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer rt.close()

			deps := mcp.ServerDeps{
				Logger:   rt.logger,
				Recorder: rt.metrics,
				Tracer:   rt.providers.Tracer,
				Strict:   rt.cfg.Detect.Strict,
			}

			if !memoryStore {
				deps.OpenStore = func(scope prefstore.Scope) (changetrack.Store, error) {
					return rt.openStore(scope)
				}
			}

			return mcp.NewServer(deps).Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&memoryStore, flagMemoryStore, false, "keep change records in memory instead of the store directory")

	return cmd
}
