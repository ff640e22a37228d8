package main

import (
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <type> <id>",
		Short: "Show every historical state of a record",
		Long:  "Reconstructs the record's state at each revision that touched it, oldest first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleHistory(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}
