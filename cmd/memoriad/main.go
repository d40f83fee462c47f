package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memoria-ai/memoria/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memoriad",
		Short: "Memoria daemon",
		Long:  "Memoria daemon for running the retrieval-augmented memory engine API server",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
