package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int
	var taskID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Tail daemon logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			// Start from the most recent events, then follow from the cursor.
			resp, err := client.Logs(cmd.Context(), 0, limit, false, true, taskID)
			if err != nil {
				return err
			}
			for _, evt := range resp.Events {
				fmt.Fprintln(out, formatLogEvent(evt))
			}
			if !follow {
				return nil
			}

			cursor := resp.Next
			for {
				resp, err := client.Logs(cmd.Context(), cursor, limit, true, false, taskID)
				if err != nil {
					return err
				}
				for _, evt := range resp.Events {
					fmt.Fprintln(out, formatLogEvent(evt))
				}
				cursor = resp.Next
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep following new log events")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum events per page")
	cmd.Flags().StringVar(&taskID, "task", "", "Only events for the given task id")
	return cmd
}
