package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/slot-booker/internal/attempts"
	"github.com/example/slot-booker/internal/auth"
	"github.com/example/slot-booker/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the dashboard over the attempt journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.RequireCookieKeys(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := openDatabase(ctx, cfg, log, migrateUp)
			if err != nil {
				return err
			}
			defer d.Close()

			ws := &web.Server{
				Auth:    auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey),
				Journal: attempts.NewRepo(d),
				Target:  cfg.TargetURL,
				Log:     log.Named("web"),
			}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log.Named("web"))
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
