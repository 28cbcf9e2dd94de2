package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ccdb/pkg/observability"
	"github.com/Sumatoshi-tech/ccdb/pkg/report"
)

const (
	changedUse   = "changed [compile_commands.json]"
	changedShort = "Report whether a compilation database changed since it was last consumed"
	changedLong  = `Compare the modification time of a compile_commands.json with the time
recorded for it in the store. A database that was never recorded, or that
disappeared after being recorded, counts as changed.

With --reset the current modification time is recorded as consumed, so the
next check reports unchanged until the file is written again. --forget drops
the record instead. The command exits 0 either way.`

	flagReset  = "reset"
	flagForget = "forget"
)

func newChangedCommand(globals *globalFlags) *cobra.Command {
	output := &outputFlags{}

	var reset, forget bool

	cmd := &cobra.Command{
		Use:   changedUse,
		Short: changedShort,
		Long:  changedLong,
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

			database := rt.database(args)

			store, err := rt.openStore(rt.scope(database))
			if err != nil {
				return err
			}

			session, err := rt.session(database, store)
			if err != nil {
				return err
			}

			if forget {
				err = session.Forget()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cobraCmd.OutOrStdout(), "Forgot:    %s\n", session.Path())

				return err
			}

			before, err := session.Inspect()
			if err != nil {
				return err
			}

			changed, err := session.HasChanged(cobraCmd.Context(), reset)
			if err != nil {
				return err
			}

			return writer.Change(report.Change{
				Database: session.Path(),
				Project:  session.Project(),
				Config:   session.Config(),
				Changed:  changed,
				Stored:   before.Stored,
				Current:  before.Current,
				Reset:    reset,
			})
		},
	}

	output.register(cmd)
	cmd.Flags().BoolVar(&reset, flagReset, false, "record the current modification time as consumed")
	cmd.Flags().BoolVar(&forget, flagForget, false, "drop the stored record for the database")
	cmd.MarkFlagsMutuallyExclusive(flagReset, flagForget)

	return cmd
}
