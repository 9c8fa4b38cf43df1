package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schsync/internal/auth"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token TOKEN",
	Short: "Print the bcrypt hash of an API token for SCHSYNC_HTTP_TOKEN_BCRYPT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashToken(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
		return err
	},
}
