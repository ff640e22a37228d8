package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <type> <id> <old-revision> <new-revision>",
		Short: "Compare a record's state at two revisions",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldRevision, err := parseRevision(args[2])
			if err != nil {
				return err
			}
			newRevision, err := parseRevision(args[3])
			if err != nil {
				return err
			}
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleDiff(cmd.Context(), args[0], args[1], oldRevision, newRevision)
				if err != nil {
					return err
				}

				if !result.Diff.HasChanges() {
					fmt.Printf("No changes between revisions %d and %d.\n", oldRevision, newRevision)
					return nil
				}

				for _, field := range result.Diff.ChangedFields() {
					change := result.Diff[field]
					fmt.Printf("%s: %v -> %v\n", field, change.Old, change.New)
				}
				return nil
			})
		},
	}
}
