package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "misaki",
		Short:   "Misaki — conversational assistant request router",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newAuditCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
