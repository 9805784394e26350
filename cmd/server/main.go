package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "diary-sync-server",
	Short: "Shared diary with live change notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), defaultServeFlags)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
