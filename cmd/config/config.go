// Package config implements the config subcommands.
package config

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/evaluation"
)

// Command creates the config command group.
func Command(env *app.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the process configuration",
	}
	cmd.AddCommand(showCommand(env))
	return cmd
}

func showCommand(env *app.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(redacted(env.Settings)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// redacted returns a copy of s with every secret masked.
func redacted(s *conf.Settings) conf.Settings {
	c := *s
	c.Storage.MySQL.Password = evaluation.MaskCredential(c.Storage.MySQL.Password)
	c.Credential.SealingKey = evaluation.MaskCredential(c.Credential.SealingKey)
	c.MQTT.Password = evaluation.MaskCredential(c.MQTT.Password)
	c.Telemetry.SentryDSN = evaluation.MaskCredential(c.Telemetry.SentryDSN)
	return c
}
