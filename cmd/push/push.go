// Package push implements the push command.
package push

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/evalsync/cmd/output"
	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/errors"
)

// Command creates the push command.
func Command(env *app.Env) *cobra.Command {
	var pending bool
	var attempts int

	cmd := &cobra.Command{
		Use:   "push [id]",
		Short: "Push one record, or every queued and failed record, to the registry",
		Long: "Push runs the full retry schedule: up to --attempts tries with " +
			"exponential backoff between them. Progress is saved after every attempt.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending == (len(args) == 1) {
				return errors.Newf("give either a record id or --pending").
					Component("cli").Category(errors.CategoryValidation).Build()
			}

			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if pending {
				batches, err := a.Coordinator.PendingBatches(cmd.Context())
				if err != nil {
					return err
				}
				ctx, cancel := a.PushContext(cmd.Context(), attempts, batches)
				defer cancel()

				summary, err := a.Coordinator.PushPending(ctx, attempts)
				if err != nil {
					return err
				}
				for _, r := range summary.Results {
					line := fmt.Sprintf("%s\t%s\t%d attempts", r.RecordID, r.Status, r.Attempts)
					if r.Err != nil {
						line += "\t" + r.Err.Error()
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d, failed %d\n", summary.Synced(), summary.Failed())
				if summary.Failed() > 0 {
					return fmt.Errorf("%d records did not sync", summary.Failed())
				}
				return nil
			}

			ctx, cancel := a.PushContext(cmd.Context(), attempts, 1)
			defer cancel()

			rec, err := a.Coordinator.PushByID(ctx, args[0], attempts)
			if rec != nil {
				if outErr := output.JSON(cmd.OutOrStdout(), rec); outErr != nil && err == nil {
					err = outErr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "Push every queued and failed record")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Attempt budget per record (default from sync.max_attempts)")
	return cmd
}
