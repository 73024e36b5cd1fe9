package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/slot-booker/internal/probe"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Fetch APPOINTMENT_URL over plain HTTP and report visible dates and slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.RequireTarget(); err != nil {
				return err
			}

			rep, err := probe.New(log.Named("probe")).Check(cmd.Context(), cfg.TargetURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "url=%s status=%d title=%q form=%t\n", rep.URL, rep.StatusCode, rep.Title, rep.HasForm)
			for _, d := range rep.Dates {
				fmt.Fprintf(out, "date %q href=%s\n", d.Label, d.Href)
			}
			fmt.Fprintf(out, "dates=%d slots=%d available=%t\n", len(rep.Dates), rep.Slots, rep.Available())
			return nil
		},
	}
}
