// Package serve implements the serve command.
package serve

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/evalsync/internal/api"
	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/logger"
)

// Command creates the serve command.
func Command(env *app.Env) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		Long:  "Serve exposes /api/v1 for record capture, push and export, /health and /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := api.ConfigFromSettings(env.Settings)
			if listen != "" {
				cfg.Listen = listen
			}

			server, err := api.New(cfg, a.Store, a.Coordinator,
				api.WithLogger(logger.Global().Module("api")),
				api.WithMetrics(a.Metrics),
				api.WithBuildInfo(a.Build))
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override webserver.listen")
	return cmd
}
