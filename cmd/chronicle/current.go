package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current <type> <id>",
		Short: "Show the highest revision that touched a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleCurrent(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(result.Revision)
				return nil
			})
		},
	}
}
