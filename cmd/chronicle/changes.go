package main

import (
	"github.com/spf13/cobra"
)

func newChangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changes <revision>",
		Short: "List every record written at a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision, err := parseRevision(args[0])
			if err != nil {
				return err
			}
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleChanges(cmd.Context(), revision)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}
