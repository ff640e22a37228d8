package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Page through the revision ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleLog(cmd.Context(), limit, offset)
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

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of revisions")
	cmd.Flags().IntVarP(&offset, "offset", "o", 0, "Number of revisions to skip")

	return cmd
}
