package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"veriflow/internal/store"
	"veriflow/internal/task"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var profile string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List verification tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			tasks, err := client.ListTasks(cmd.Context(), statuses, strings.TrimSpace(profile))
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
				return nil
			}

			rows := make([][]string, 0, len(tasks))
			for _, view := range tasks {
				rows = append(rows, taskRow(view))
			}
			printRows(cmd.OutOrStdout(),
				[]string{"ID", "PROFILE", "STATUS", "STEP", "SUMMARY", "UPDATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&statusFlags, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Filter by profile")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}
			printTaskDetails(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), args[0], strings.TrimSpace(reason)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason recorded on the task")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var profile string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted verification outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			outcomes, err := client.Outcomes(cmd.Context(), store.OutcomeFilter{
				Statuses: statuses,
				Profile:  strings.TrimSpace(profile),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, outcomes)
			}
			if len(outcomes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No outcomes")
				return nil
			}

			rows := make([][]string, 0, len(outcomes))
			for _, outcome := range outcomes {
				summary := ""
				if outcome.Result != nil {
					switch {
					case outcome.Result.RewardCode != "":
						summary = "reward " + outcome.Result.RewardCode
					case outcome.Result.Reason != "":
						summary = outcome.Result.Reason
					case outcome.Result.Detail != "":
						summary = outcome.Result.Detail
					}
				}
				rows = append(rows, []string{
					shortID(outcome.TaskID),
					outcome.Profile,
					outcome.Status,
					summary,
					outcome.FinishedAt,
				})
			}
			printRows(cmd.OutOrStdout(),
				[]string{"ID", "PROFILE", "STATUS", "SUMMARY", "FINISHED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&statusFlags, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Filter by profile")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum outcomes to return")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newProfilesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List loaded workflow profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			profiles, err := client.Profiles(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, profiles)
			}
			rows := make([][]string, 0, len(profiles))
			for _, view := range profiles {
				rows = append(rows, []string{
					view.Name,
					view.EntryStep,
					fmt.Sprintf("%d", view.PathLength),
					strings.Join(view.StepNames, ", "),
				})
			}
			printRows(cmd.OutOrStdout(),
				[]string{"PROFILE", "ENTRY", "PATH", "STEPS"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func parseStatuses(values []string) ([]task.Status, error) {
	statuses := make([]task.Status, 0, len(values))
	for _, value := range values {
		status, ok := task.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
