package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.TestNotification(cmd.Context())
			if err != nil {
				return err
			}
			if resp.Sent {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Not sent: %s\n", resp.Message)
			return nil
		},
	}
}
