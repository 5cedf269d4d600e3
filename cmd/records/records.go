// Package records implements the records subcommands.
package records

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tphakala/evalsync/cmd/output"
	"github.com/tphakala/evalsync/internal/app"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
)

// Fs is where draft files are read from. Tests swap it for a memory fs.
var Fs = afero.NewOsFs()

// Command creates the records command group.
func Command(env *app.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List, inspect, create and delete evaluation records",
	}
	cmd.AddCommand(listCommand(env), showCommand(env), createCommand(env), deleteCommand(env))
	return cmd
}

func listCommand(env *app.Env) *cobra.Command {
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Store.ListRecords(cmd.Context())
			if err != nil {
				return err
			}
			if status != "" {
				s, err := evaluation.ParseStatus(status)
				if err != nil {
					return err
				}
				recs = evaluation.FilterByStatus(recs, s)
			}
			evaluation.SortByTimestampDesc(recs)

			if asJSON {
				if recs == nil {
					recs = []*evaluation.Record{}
				}
				return output.JSON(cmd.OutOrStdout(), recs)
			}
			return output.RecordTable(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only records with this status (local, queued, failed, synced)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full records as JSON")
	return cmd
}

func showCommand(env *app.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, found, err := a.Store.GetRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return errors.Newf("record %s not found", args[0]).
					Component("cli").
					Category(errors.CategoryNotFound).
					Build()
			}
			return output.JSON(cmd.OutOrStdout(), rec)
		},
	}
}

func createCommand(env *app.Env) *cobra.Command {
	var file, status string
	var push bool

	cmd := &cobra.Command{
		Use:   "create --file draft.json",
		Short: "Store a draft evaluation read from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := afero.ReadFile(Fs, file)
			if err != nil {
				return errors.New(err).Component("cli").Category(errors.CategoryFileIO).
					Context("path", file).Build()
			}
			var draft evaluation.Payload
			if err := json.Unmarshal(data, &draft); err != nil {
				return errors.New(fmt.Errorf("draft %s is not valid JSON: %w", file, err)).
					Component("cli").Category(errors.CategoryValidation).Build()
			}

			initial := evaluation.StatusLocal
			if push {
				initial = evaluation.StatusQueued
			} else if status != "" {
				if initial, err = evaluation.ParseStatus(status); err != nil {
					return err
				}
			}

			rec, err := evaluation.NewRecord(draft, initial, time.Now().UTC())
			if err != nil {
				return err
			}

			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.SaveRecord(cmd.Context(), rec); err != nil {
				return err
			}
			if push {
				ctx, cancel := a.PushContext(cmd.Context(), 0, 1)
				defer cancel()
				if err := a.Coordinator.PushWithRetry(ctx, rec, 0); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "saved %s but push did not complete: %v\n", rec.ID, err)
				}
			}
			return output.JSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Draft payload JSON file")
	cmd.Flags().StringVar(&status, "status", "", "Initial status: local (default) or queued")
	cmd.Flags().BoolVar(&push, "push", false, "Queue the record and push it immediately")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func deleteCommand(env *app.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record; deleting an unknown id is not an error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Store.DeleteRecord(cmd.Context(), args[0])
		},
	}
}
