package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"veriflow/internal/api"
	"veriflow/internal/task"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Follow a task until it settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			final, err := followTask(cmd, client, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, final)
			}
			printTaskDetails(cmd.OutOrStdout(), final)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

// followTask long-polls the events endpoint, printing one line per snapshot,
// and returns the terminal view.
func followTask(cmd *cobra.Command, client *apiClient, taskID string) (api.TaskView, error) {
	out := cmd.OutOrStdout()
	var cursor uint64
	var last api.TaskView
	seen := false

	for {
		resp, err := client.Events(cmd.Context(), taskID, cursor, true)
		if err != nil {
			return api.TaskView{}, err
		}
		for _, snap := range resp.Snapshots {
			line := snap.Status
			if snap.CurrentAction != "" {
				line += ": " + snap.CurrentAction
			}
			fmt.Fprintf(out, "[%d/%d] %s\n", snap.CurrentStepIndex, snap.TotalSteps, line)
			last = snap
			seen = true
		}
		cursor = resp.Cursor
		if resp.Done {
			break
		}
	}

	if seen && task.Status(last.Status).IsTerminal() {
		return last, nil
	}
	return client.Describe(cmd.Context(), taskID)
}
