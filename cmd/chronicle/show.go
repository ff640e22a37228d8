package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "show <type> <id> <revision>",
		Short: "Show a record's state at a revision",
		Long: "Reconstructs the record's state at the given revision, following " +
			"latest-at-or-before semantics. Composite identities are passed as " +
			"field=value pairs separated by commas.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision, err := parseRevision(args[2])
			if err != nil {
				return err
			}
			return withDeps(func(d *Deps) error {
				result, err := d.AuditHandler.HandleShow(cmd.Context(), args[0], args[1], revision, strict)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the resolved state is a deletion")

	return cmd
}

func parseRevision(s string) (int64, error) {
	revision, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revision %q: %w", s, err)
	}
	return revision, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
