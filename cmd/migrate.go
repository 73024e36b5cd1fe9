package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/slot-booker/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply journal and operator migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			d, err := openDatabase(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer d.Close()

			applied, err := migrate.Up(cmd.Context(), d, log.Named("migrate"))
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, f := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", f)
			}
			return nil
		},
	}
}
