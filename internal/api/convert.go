package api

import (
	"time"

	"veriflow/internal/store"
	"veriflow/internal/subject"
	"veriflow/internal/task"
	"veriflow/internal/workflow"
)

// FromTask converts a task snapshot into its wire representation.
func FromTask(t *task.Task) TaskView {
	if t == nil {
		return TaskView{}
	}
	view := TaskView{
		ID:               t.ID,
		Profile:          t.Profile,
		Status:           string(t.Status),
		CurrentStepIndex: t.CurrentStepIndex,
		TotalSteps:       t.TotalSteps,
		CurrentAction:    t.CurrentAction,
		VerificationID:   t.VerificationID,
		Logs:             fromLogs(t.Logs),
		CreatedAt:        formatTime(t.CreatedAt),
		UpdatedAt:        formatTime(t.UpdatedAt),
	}
	if t.Result != nil {
		view.Result = fromResult(*t.Result)
	}
	return view
}

// FromTasks converts task snapshots in order. It never returns nil so JSON
// listings encode as [] rather than null.
func FromTasks(tasks []*task.Task) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, FromTask(t))
	}
	return views
}

// FromOutcome converts a persisted outcome into its wire representation.
func FromOutcome(outcome *store.Outcome) OutcomeView {
	if outcome == nil {
		return OutcomeView{}
	}
	return OutcomeView{
		TaskID:         outcome.TaskID,
		Profile:        outcome.Profile,
		Status:         string(outcome.Status),
		VerificationID: outcome.VerificationID,
		Result:         fromResult(outcome.Result),
		StepIndex:      outcome.StepIndex,
		TotalSteps:     outcome.TotalSteps,
		CreatedAt:      formatTime(outcome.CreatedAt),
		FinishedAt:     formatTime(outcome.FinishedAt),
	}
}

// FromOutcomes converts outcomes in order, never returning nil.
func FromOutcomes(outcomes []*store.Outcome) []OutcomeView {
	views := make([]OutcomeView, 0, len(outcomes))
	for _, outcome := range outcomes {
		views = append(views, FromOutcome(outcome))
	}
	return views
}

// FromDefinition summarizes a loaded workflow profile.
func FromDefinition(def *workflow.Definition) ProfileView {
	if def == nil {
		return ProfileView{}
	}
	names := make([]string, 0, len(def.Steps))
	for i := range def.Steps {
		names = append(names, def.Steps[i].Name)
	}
	return ProfileView{
		Name:       def.Profile,
		EntryStep:  def.Entry,
		StepNames:  names,
		PathLength: def.PathLength(def.Entry),
	}
}

// taskFromOutcome rebuilds a task view from a persisted outcome so finished
// tasks stay addressable after the in-memory registry forgets them.
func taskFromOutcome(outcome *store.Outcome) TaskView {
	return TaskView{
		ID:               outcome.TaskID,
		Profile:          outcome.Profile,
		Status:           string(outcome.Status),
		CurrentStepIndex: outcome.StepIndex,
		TotalSteps:       outcome.TotalSteps,
		VerificationID:   outcome.VerificationID,
		Logs:             fromLogs(outcome.Logs),
		Result:           fromResult(outcome.Result),
		CreatedAt:        formatTime(outcome.CreatedAt),
		UpdatedAt:        formatTime(outcome.FinishedAt),
	}
}

// Record converts the inline payload to a subject record. Normalization and
// validation happen downstream in the runner.
func (p *SubjectPayload) Record() subject.Record {
	if p == nil {
		return subject.Record{}
	}
	return subject.Record{
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		BirthDate:        p.BirthDate,
		Email:            p.Email,
		Phone:            p.Phone,
		OrganizationID:   p.OrganizationID,
		OrganizationName: p.OrganizationName,
		DischargeDate:    p.DischargeDate,
		StatusCode:       p.StatusCode,
		Country:          p.Country,
		Locale:           p.Locale,
	}
}

func fromLogs(entries []task.LogEntry) []LogEntryView {
	views := make([]LogEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, LogEntryView{
			At:      formatTime(entry.At),
			Message: entry.Message,
		})
	}
	return views
}

func fromResult(result task.Result) *ResultView {
	if result == (task.Result{}) {
		return nil
	}
	return &ResultView{
		RedirectURL: result.RedirectURL,
		RewardCode:  result.RewardCode,
		Reason:      result.Reason,
		Detail:      result.Detail,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
