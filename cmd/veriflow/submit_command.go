package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"veriflow/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var profile string
	var useStored bool
	var watch bool
	var jsonOut bool
	subject := &api.SubjectPayload{}

	cmd := &cobra.Command{
		Use:   "submit <verification-url-or-id>",
		Short: "Start a verification task",
		Long: "Start a verification task against a remote verification URL. The subject\n" +
			"comes from flags, or from the stored roster with --use-stored.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			req := api.SubmitRequest{
				Profile:          strings.TrimSpace(profile),
				UseStoredSubject: useStored,
			}
			target := strings.TrimSpace(args[0])
			if strings.Contains(target, "/") || strings.Contains(target, "?") {
				req.VerificationURL = target
			} else {
				req.VerificationID = target
			}
			if !useStored {
				if subject.FirstName == "" && subject.LastName == "" {
					return errors.New("subject flags are required unless --use-stored is set")
				}
				req.Subject = subject
			}

			view, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}

			if jsonOut && !watch {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted task %s (profile %s)\n", view.ID, view.Profile)

			if !watch {
				return nil
			}
			final, err := followTask(cmd, client, view.ID)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, final)
			}
			printTaskDetails(out, final)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Workflow profile name")
	cmd.Flags().BoolVar(&useStored, "use-stored", false, "Consume the next unused subject from the roster")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the task until it settles")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	cmd.Flags().StringVar(&subject.FirstName, "first-name", "", "Subject first name")
	cmd.Flags().StringVar(&subject.LastName, "last-name", "", "Subject last name")
	cmd.Flags().StringVar(&subject.BirthDate, "birth-date", "", "Subject birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&subject.Email, "email", "", "Subject email address")
	cmd.Flags().StringVar(&subject.Phone, "phone", "", "Subject phone number")
	cmd.Flags().Int64Var(&subject.OrganizationID, "org-id", 0, "Subject organization id")
	cmd.Flags().StringVar(&subject.OrganizationName, "org-name", "", "Subject organization name")
	cmd.Flags().StringVar(&subject.DischargeDate, "discharge-date", "", "Discharge date for veterans (YYYY-MM-DD)")
	cmd.Flags().StringVar(&subject.StatusCode, "status", "", "Remote status selector, e.g. VETERAN")
	cmd.Flags().StringVar(&subject.Country, "country", "", "Subject country (default US)")
	cmd.Flags().StringVar(&subject.Locale, "locale", "", "Subject locale (default en-US)")

	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
