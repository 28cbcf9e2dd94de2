// Package commands implements the ccdb CLI subcommands.
package commands

import (
	"github.com/spf13/cobra"
)

const (
	rootUse   = "ccdb"
	rootShort = "Inspect CMake compilation databases and their cross toolchains"
	rootLong  = `ccdb reads a CMake compile_commands.json, lists its compile units and
infers the cross toolchain (compiler location, executable, sysroot) from the
first compile command. It also tracks whether the database changed since it
was last consumed.

Commands:
  parse      Ingest a database and print its units and toolchain
  toolchain  Print the inferred toolchain only
  changed    Report whether a database changed since it was last consumed
  watch      Re-ingest a database whenever it changes
  mcp        Serve ingestion and change checks over MCP stdio`
)

// Persistent flag names shared by every subcommand.
const (
	flagConfigFile    = "config-file"
	flagProject       = "project"
	flagConfiguration = "config"
	flagStoreDir      = "store-dir"
	flagStoreFormat   = "store-format"
	flagStrict        = "strict"
	flagLogLevel      = "log-level"
	flagLogJSON       = "log-json"
)

// globalFlags holds persistent flag values. They override the loaded
// configuration only when set on the command line.
type globalFlags struct {
	configFile    string
	project       string
	configuration string
	storeDir      string
	storeFormat   string
	strict        bool
	logLevel      string
	logJSON       bool
}

// NewRootCommand builds the ccdb command tree without the version command,
// which main adds.
func NewRootCommand() *cobra.Command {
	globals := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           rootUse,
		Short:         rootShort,
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globals.configFile, flagConfigFile, "", "settings file (default: .ccdb.yaml in CWD, then $HOME)")
	flags.StringVar(&globals.project, flagProject, "", "owning project name (default: database directory name)")
	flags.StringVar(&globals.configuration, flagConfiguration, "", "build configuration name (e.g. Debug)")
	flags.StringVar(&globals.storeDir, flagStoreDir, "", "change-timestamp store directory")
	flags.StringVar(&globals.storeFormat, flagStoreFormat, "", "change-timestamp store format: json or yaml")
	flags.BoolVar(&globals.strict, flagStrict, false, "tokenize compile commands with shell quoting rules")
	flags.StringVar(&globals.logLevel, flagLogLevel, "", "log level: debug, info, warn or error")
	flags.BoolVar(&globals.logJSON, flagLogJSON, false, "emit logs as JSON")

	rootCmd.AddCommand(
		newParseCommand(globals),
		newToolchainCommand(globals),
		newChangedCommand(globals),
		newWatchCommand(globals),
		newMCPCommand(globals),
	)

	return rootCmd
}
