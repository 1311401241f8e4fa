package api

import (
	"testing"
	"time"

	"veriflow/internal/store"
	"veriflow/internal/task"
	"veriflow/internal/workflow"
)

func TestFromTaskFormatsView(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	snapshot := &task.Task{
		ID:               "task-1",
		Profile:          "military",
		Status:           task.StatusRunning,
		CurrentStepIndex: 1,
		TotalSteps:       2,
		CurrentAction:    "Submitting personal information",
		VerificationID:   "68a1b2c3d4e5f60718293a4b",
		Logs: []task.LogEntry{
			{At: created.Add(time.Second), Message: "Step collectMilitaryStatus complete"},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(2 * time.Second),
	}

	view := FromTask(snapshot)
	if view.Status != "running" {
		t.Fatalf("unexpected status %q", view.Status)
	}
	if view.CreatedAt != "2026-03-14T09:26:53.589Z" {
		t.Fatalf("unexpected createdAt %q", view.CreatedAt)
	}
	if len(view.Logs) != 1 || view.Logs[0].Message != "Step collectMilitaryStatus complete" {
		t.Fatalf("unexpected logs %+v", view.Logs)
	}
	if view.Result != nil {
		t.Fatalf("expected no result on a running task, got %+v", view.Result)
	}
	if view.VerificationID != "68a1b2c3d4e5f60718293a4b" {
		t.Fatalf("unexpected verificationId %q", view.VerificationID)
	}
}

func TestFromTaskOmitsEmptyResult(t *testing.T) {
	snapshot := &task.Task{ID: "task-2", Status: task.StatusFailed, Result: &task.Result{}}
	if view := FromTask(snapshot); view.Result != nil {
		t.Fatalf("expected empty result to be omitted, got %+v", view.Result)
	}

	snapshot.Result = &task.Result{Detail: "boom"}
	view := FromTask(snapshot)
	if view.Result == nil || view.Result.Detail != "boom" {
		t.Fatalf("expected populated result, got %+v", view.Result)
	}
}

func TestTaskFromOutcome(t *testing.T) {
	finished := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	outcome := &store.Outcome{
		TaskID:         "task-3",
		Profile:        "teacher-k12",
		Status:         task.StatusPendingReview,
		VerificationID: "68a1b2c3d4e5f60718293a4b",
		Result:         task.Result{RedirectURL: "https://example.com/review"},
		StepIndex:      3,
		TotalSteps:     3,
		Logs:           []task.LogEntry{{At: finished, Message: "Verification submitted for review"}},
		CreatedAt:      finished.Add(-time.Minute),
		FinishedAt:     finished,
	}

	view := taskFromOutcome(outcome)
	if view.ID != "task-3" || view.Status != "pending_review" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.CurrentStepIndex != 3 || view.TotalSteps != 3 {
		t.Fatalf("unexpected progress %d/%d", view.CurrentStepIndex, view.TotalSteps)
	}
	if view.Result == nil || view.Result.RedirectURL != "https://example.com/review" {
		t.Fatalf("unexpected result %+v", view.Result)
	}
	if view.UpdatedAt != "2026-03-14T10:00:00.000Z" {
		t.Fatalf("unexpected updatedAt %q", view.UpdatedAt)
	}
}

func TestFromDefinition(t *testing.T) {
	def, err := workflow.Parse([]byte(`
profile = "military"
entry = "stepA"

[[step]]
name = "stepA"
kind = "submit_form"
action = "Submitting status"

[[step]]
name = "stepB"
kind = "submit_form"
action = "Submitting personal information"
terminal = true
outcome = "approved"
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	view := FromDefinition(def)
	if view.Name != "military" || view.EntryStep != "stepA" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.PathLength != 2 || len(view.StepNames) != 2 {
		t.Fatalf("unexpected shape %+v", view)
	}
}
