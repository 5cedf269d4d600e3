// Package cmd builds the evalsync command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/evalsync/cmd/config"
	"github.com/tphakala/evalsync/cmd/export"
	"github.com/tphakala/evalsync/cmd/push"
	"github.com/tphakala/evalsync/cmd/records"
	"github.com/tphakala/evalsync/cmd/serve"
	"github.com/tphakala/evalsync/cmd/settings"
	"github.com/tphakala/evalsync/cmd/version"
	"github.com/tphakala/evalsync/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(env *app.Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "evalsync",
		Short:        "Evaluation record store and registry sync",
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, env); err != nil {
		panic(err)
	}

	versionCmd := version.Command()
	serveCmd := serve.Command(env)

	rootCmd.AddCommand(
		records.Command(env),
		push.Command(env),
		export.Command(env),
		settings.Command(env),
		config.Command(env),
		serveCmd,
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		// Keep stdout for data on one-shot commands
		if cmd.Name() != serveCmd.Name() {
			env.LogOutput = cmd.ErrOrStderr()
		}
		if err := env.Load(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, env *app.Env) error {
	rootCmd.PersistentFlags().StringVarP(&env.ConfigFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/evalsync, /etc/evalsync)")
	rootCmd.PersistentFlags().BoolVarP(&env.Debug, "debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
