package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/application/handlers"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a chronicle workspace",
		Long:  "Creates the .chronicle directory with a default config and a starter audit schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			result, err := handlers.NewInitHandler().Handle(cwd)
			if err != nil {
				return err
			}

			fmt.Printf("Initialized chronicle workspace.\n")
			fmt.Printf("  Config: %s\n", result.ConfigPath)
			fmt.Printf("  Schema: %s\n", result.SchemaPath)
			fmt.Println("\nDescribe your audited types in the schema file, then point the database config at your store.")
			return nil
		},
	}
}
