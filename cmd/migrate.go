package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"metal-catalog-service/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply every pending schema migration embedded in the binary and print the
resulting schema version.

Example:
  metal-catalog migrate
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := database.Migrate(cmd.Context(), a.db); err != nil {
			return err
		}
		version, err := database.MigrationVersion(cmd.Context(), a.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
		return nil
	},
}
