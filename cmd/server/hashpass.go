package main

import (
	"fmt"

	"diary-sync-server/pkg/hash"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "hash-pass <passphrase>",
		Short: "Print a bcrypt hash usable as UNLOCK_PASS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashed, err := hash.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	})
}
