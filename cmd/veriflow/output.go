package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"veriflow/internal/api"
	"veriflow/internal/logging"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stdoutIsTerminal gates table decoration: piped output gets plain
// tab-separated rows for scripting.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func printRows(out io.Writer, headers []string, rows [][]string, aligns []columnAlignment) {
	if stdoutIsTerminal() {
		fmt.Fprintln(out, renderTable(headers, rows, aligns))
		return
	}
	fmt.Fprintln(out, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(out, strings.Join(row, "\t"))
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func taskRow(view api.TaskView) []string {
	return []string{
		shortID(view.ID),
		view.Profile,
		view.Status,
		fmt.Sprintf("%d/%d", view.CurrentStepIndex, view.TotalSteps),
		taskSummary(view),
		view.UpdatedAt,
	}
}

// taskSummary condenses the most useful line of a task for listings: the
// current action while running, the result afterwards.
func taskSummary(view api.TaskView) string {
	if view.CurrentAction != "" {
		return view.CurrentAction
	}
	if view.Result == nil {
		return ""
	}
	switch {
	case view.Result.RewardCode != "":
		return "reward " + view.Result.RewardCode
	case view.Result.Reason != "":
		return view.Result.Reason
	case view.Result.Detail != "":
		return view.Result.Detail
	case view.Result.RedirectURL != "":
		return view.Result.RedirectURL
	default:
		return ""
	}
}

func printTaskDetails(out io.Writer, view api.TaskView) {
	fmt.Fprintf(out, "Task:     %s\n", view.ID)
	fmt.Fprintf(out, "Profile:  %s\n", view.Profile)
	fmt.Fprintf(out, "Status:   %s\n", view.Status)
	fmt.Fprintf(out, "Progress: %d/%d\n", view.CurrentStepIndex, view.TotalSteps)
	if view.CurrentAction != "" {
		fmt.Fprintf(out, "Action:   %s\n", view.CurrentAction)
	}
	if view.VerificationID != "" {
		fmt.Fprintf(out, "Remote:   %s\n", view.VerificationID)
	}
	if view.Result != nil {
		if view.Result.RewardCode != "" {
			fmt.Fprintf(out, "Reward:   %s\n", view.Result.RewardCode)
		}
		if view.Result.RedirectURL != "" {
			fmt.Fprintf(out, "Redirect: %s\n", view.Result.RedirectURL)
		}
		if view.Result.Reason != "" {
			fmt.Fprintf(out, "Reason:   %s\n", view.Result.Reason)
		}
		if view.Result.Detail != "" {
			fmt.Fprintf(out, "Detail:   %s\n", view.Result.Detail)
		}
	}
	if len(view.Logs) > 0 {
		fmt.Fprintln(out, "Log:")
		for _, entry := range view.Logs {
			fmt.Fprintf(out, "  %s  %s\n", entry.At, entry.Message)
		}
	}
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	b.WriteByte(' ')
	b.WriteString(evt.Level)
	b.WriteByte(' ')
	if evt.Component != "" {
		b.WriteString(evt.Component)
		b.WriteString(": ")
	}
	b.WriteString(evt.Message)
	if evt.TaskID != "" {
		b.WriteString(" task=")
		b.WriteString(shortID(evt.TaskID))
	}
	if evt.Step != "" {
		b.WriteString(" step=")
		b.WriteString(evt.Step)
	}

	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(evt.Fields[key])
	}
	return b.String()
}
