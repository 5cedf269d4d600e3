// Package settings implements the operator settings subcommands.
package settings

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/evalsync/cmd/output"
	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/evaluation"
)

// Command creates the settings command group.
func Command(env *app.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the registry endpoint and operator preferences",
	}
	cmd.AddCommand(showCommand(env), setCommand(env))
	return cmd
}

func showCommand(env *app.Env) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings with the API key masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Store.GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			if !reveal {
				s = s.Masked()
			}
			return output.JSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the API key in clear")
	return cmd
}

func setCommand(env *app.Env) *cobra.Command {
	var (
		endpoint, apiKey, unit, mode string
		enabled                      bool
		offset                       float64
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change individual settings; flags not given keep their stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Store.GetSettings(cmd.Context())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("endpoint") {
				s.Registry.Endpoint = endpoint
			}
			if flags.Changed("api-key") {
				s.Registry.APIKey = apiKey
			}
			if flags.Changed("enabled") {
				s.Registry.Enabled = enabled
			}
			if flags.Changed("unit") {
				s.MeasurementUnit = evaluation.MeasurementUnit(unit)
			}
			if flags.Changed("calibration-offset") {
				s.CalibrationOffset = offset
			}
			if flags.Changed("inference-mode") {
				s.InferenceMode = evaluation.InferenceMode(mode)
			}

			if err := s.Validate(); err != nil {
				return err
			}
			if err := a.Store.SaveSettings(cmd.Context(), s); err != nil {
				return err
			}
			return output.JSON(cmd.OutOrStdout(), s.Masked())
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Registry endpoint URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Registry bearer token")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "Enable pushes to the registry")
	cmd.Flags().StringVar(&unit, "unit", "", "Measurement unit: metric or imperial")
	cmd.Flags().Float64Var(&offset, "calibration-offset", 0, "Calibration offset")
	cmd.Flags().StringVar(&mode, "inference-mode", "", "Inference mode: client or server")
	return cmd
}
