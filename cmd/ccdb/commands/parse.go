package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ccdb/pkg/observability"
	"github.com/Sumatoshi-tech/ccdb/pkg/report"
	"github.com/Sumatoshi-tech/ccdb/pkg/toolchain"
)

const (
	parseUse   = "parse [compile_commands.json]"
	parseShort = "Ingest a compilation database and print its units and toolchain"
	parseLong  = `Parse a CMake compile_commands.json, list every compile unit and the
toolchain inferred from the first compile command.

The database defaults to the configured path (compile_commands.json in the
current directory).`

	toolchainUse   = "toolchain [compile_commands.json]"
	toolchainShort = "Print the toolchain inferred from a compilation database"

	flagFormat          = "format"
	flagNoColor         = "no-color"
	flagRequireCompiler = "require-compiler"
)

// outputFlags are shared by every command that renders a report.
type outputFlags struct {
	format  string
	noColor bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, flagFormat, "f", string(report.FormatText),
		"output format: text, table, json or yaml")
	cmd.Flags().BoolVar(&o.noColor, flagNoColor, false, "disable colored text output")
}

func (o *outputFlags) writer(cmd *cobra.Command) (*report.Writer, error) {
	format, err := report.ParseFormat(o.format)
	if err != nil {
		return nil, err
	}

	var opts []report.Option
	if o.noColor {
		opts = append(opts, report.WithoutColor())
	}

	return report.NewWriter(cmd.OutOrStdout(), format, opts...), nil
}

func newParseCommand(globals *globalFlags) *cobra.Command {
	output := &outputFlags{}

	cmd := &cobra.Command{
		Use:   parseUse,
		Short: parseShort,
		Long:  parseLong,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			writer, err := output.writer(cobraCmd)
			if err != nil {
				return err
			}

			rt, err := globals.setup(cobraCmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer rt.close()

			session, err := rt.session(rt.database(args), nil)
			if err != nil {
				return err
			}

			err = session.Parse(cobraCmd.Context())
			if err != nil {
				return err
			}

			return writer.Ingest(ingestReport(session))
		},
	}

	output.register(cmd)

	return cmd
}

func newToolchainCommand(globals *globalFlags) *cobra.Command {
	output := &outputFlags{}

	var requireCompiler bool

	cmd := &cobra.Command{
		Use:   toolchainUse,
		Short: toolchainShort,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			writer, err := output.writer(cobraCmd)
			if err != nil {
				return err
			}

			rt, err := globals.setup(cobraCmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer rt.close()

			session, err := rt.session(rt.database(args), nil)
			if err != nil {
				return err
			}

			err = session.Parse(cobraCmd.Context())
			if err != nil {
				return err
			}

			info := session.Toolchain()
			if requireCompiler && !info.HasCompiler() {
				return fmt.Errorf("%s: %w", session.Path(), toolchain.ErrEmptyToolchain)
			}

			return writer.Toolchain(report.NewToolchainView(info))
		},
	}

	output.register(cmd)
	cmd.Flags().BoolVar(&requireCompiler, flagRequireCompiler, false,
		"fail when no compiler could be inferred")

	return cmd
}
