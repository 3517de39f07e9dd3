// File: metal-catalog-service/cmd/main.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const appName = "metal-catalog"

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Metal products catalog service",
	Long: `Catalog service for a metal products storefront.

Serves the category and product API over HTTP and the maintenance API over gRPC,
and runs one-off maintenance jobs such as recounting category product totals.

Configuration is read from environment variables; a .env file in the working
directory is loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recountCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(dedupeImagesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
