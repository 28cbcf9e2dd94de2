// Package main provides the entry point for the ccdb CLI tool.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ccdb/cmd/ccdb/commands"
	"github.com/Sumatoshi-tech/ccdb/pkg/version"
)

func main() {
	rootCmd := commands.NewRootCommand()
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			info := version.Get()

			if asJSON {
				return json.NewEncoder(cobraCmd.OutOrStdout()).Encode(info)
			}

			_, err := fmt.Fprintf(cobraCmd.OutOrStdout(), "ccdb %s (commit: %s, built: %s, %s)\n",
				info.Version, info.Commit, info.Date, info.GoVersion)

			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")

	return cmd
}
