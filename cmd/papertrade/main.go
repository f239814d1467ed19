package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Optional .env for POLYGON_API_KEY and friends.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "papertrade",
		Short:         "Simulated market with single-account paper trading",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
