package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackagent/conductor/internal/cli"
)

var rootCmd = &cobra.Command{Use: "conductor"}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (overrides DATABASE_URL / DB_* env vars)")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
