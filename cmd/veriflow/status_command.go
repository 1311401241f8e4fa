package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:      %s\n", yesNo(status.Running))
			fmt.Fprintf(out, "PID:          %d\n", status.PID)
			fmt.Fprintf(out, "Active tasks: %d\n", status.ActiveTasks)
			fmt.Fprintf(out, "Profiles:     %s\n", strings.Join(status.Profiles, ", "))
			fmt.Fprintf(out, "Store:        %s\n", status.StorePath)
			fmt.Fprintf(out, "Lock file:    %s\n", status.LockFilePath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
