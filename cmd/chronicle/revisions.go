package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <type> <id>",
		Short: "List the revisions that touched a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleRevisions(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}

				if len(result.Revisions) == 0 {
					fmt.Println("No revisions found.")
					return nil
				}

				for _, rev := range result.Revisions {
					line := fmt.Sprintf("%d  %s", rev.ID, rev.Timestamp.Format("2006-01-02 15:04:05"))
					if rev.Author != "" {
						line += "  " + rev.Author
					}
					fmt.Println(line)
				}
				return nil
			})
		},
	}
}
