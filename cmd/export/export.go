// Package export implements the export command.
package export

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/evaluation"
	"github.com/tphakala/evalsync/internal/export"
)

// Fs is where export files are written. Tests swap it for a memory fs.
var Fs = afero.NewOsFs()

// Command creates the export command.
func Command(env *app.Env) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:       "export <json|csv>",
		Short:     "Export every record as JSON or CSV",
		Long:      "Without --output the file is named evaluations_<timestamp>.<format> in the current directory. Use --output - for stdout.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(export.FormatJSON), string(export.FormatCSV)},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(args[0])
			if err != nil {
				return err
			}

			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Store.ListRecords(cmd.Context())
			if err != nil {
				return err
			}
			evaluation.SortByTimestampDesc(recs)

			if out == "-" {
				data, err := export.Encode(format, recs)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			path := out
			if path == "" {
				path = format.Filename(time.Now())
			}
			if err := export.Write(cmd.Context(), Fs, path, format, recs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", len(recs), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output path, or - for stdout")
	return cmd
}
