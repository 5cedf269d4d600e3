// Package version implements the version command.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/evalsync/internal/buildinfo"
)

// Command creates the version command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			b := buildinfo.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "evalsync %s (built %s)\n", b.GetVersion(), b.GetBuildDate())
		},
	}
}
