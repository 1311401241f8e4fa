package store_test

import (
	"context"
	"testing"
	"time"

	"veriflow/internal/store"
	"veriflow/internal/subject"
	"veriflow/internal/task"
	"veriflow/internal/testsupport"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func terminalSnapshot(id string, status task.Status) *task.Task {
	now := time.Now().UTC()
	snapshot := &task.Task{
		ID:               id,
		Profile:          "military",
		Status:           status,
		CurrentStepIndex: 2,
		TotalSteps:       2,
		VerificationID:   "68a1b2c3d4e5f60718293a4b",
		Logs: []task.LogEntry{
			{At: now, Message: "Step collectMilitaryStatus complete"},
			{At: now, Message: "Verification approved"},
		},
		Result:    &task.Result{RedirectURL: "https://example.com/done", RewardCode: "VET-77"},
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now,
	}
	return snapshot
}

func TestRecordAndGetOutcome(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	snapshot := terminalSnapshot("task-1", task.StatusApproved)
	if err := s.RecordOutcome(ctx, snapshot); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	outcome, err := s.GetOutcome(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetOutcome failed: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected outcome")
	}
	if outcome.Status != task.StatusApproved {
		t.Fatalf("unexpected status %q", outcome.Status)
	}
	if outcome.Result.RewardCode != "VET-77" {
		t.Fatalf("unexpected reward code %q", outcome.Result.RewardCode)
	}
	if len(outcome.Logs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(outcome.Logs))
	}
	if outcome.VerificationID != "68a1b2c3d4e5f60718293a4b" {
		t.Fatalf("unexpected verification id %q", outcome.VerificationID)
	}
}

func TestRecordOutcomeRejectsNonTerminal(t *testing.T) {
	s := openStore(t)
	snapshot := terminalSnapshot("task-2", task.StatusRunning)
	if err := s.RecordOutcome(context.Background(), snapshot); err == nil {
		t.Fatal("expected error for non-terminal snapshot")
	}
}

func TestRecordOutcomeIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := terminalSnapshot("task-3", task.StatusRejected)
	first.Result = &task.Result{Reason: "ineligible"}
	if err := s.RecordOutcome(ctx, first); err != nil {
		t.Fatalf("first RecordOutcome failed: %v", err)
	}
	if err := s.RecordOutcome(ctx, first); err != nil {
		t.Fatalf("second RecordOutcome failed: %v", err)
	}

	outcomes, err := s.ListOutcomes(ctx, store.OutcomeFilter{})
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Result.Reason != "ineligible" {
		t.Fatalf("unexpected reason %q", outcomes[0].Result.Reason)
	}
}

func TestListOutcomesFilters(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.RecordOutcome(ctx, terminalSnapshot("task-a", task.StatusApproved)); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	rejected := terminalSnapshot("task-b", task.StatusRejected)
	if err := s.RecordOutcome(ctx, rejected); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	approved, err := s.ListOutcomes(ctx, store.OutcomeFilter{Statuses: []task.Status{task.StatusApproved}})
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(approved) != 1 || approved[0].TaskID != "task-a" {
		t.Fatalf("unexpected filter result: %+v", approved)
	}
}

func TestSubjectRoster(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := subject.Record{
		FirstName:        "john",
		LastName:         "doe",
		BirthDate:        "1980-04-12",
		Email:            "john.doe@example.com",
		OrganizationID:   4071,
		OrganizationName: "US Army",
		StatusCode:       "VETERAN",
		DischargeDate:    "2005-06-30",
	}
	id, err := s.AddSubject(ctx, "military", rec)
	if err != nil {
		t.Fatalf("AddSubject failed: %v", err)
	}
	if _, err := s.AddSubject(ctx, "teacher-k12", subject.Record{
		FirstName: "jane", LastName: "smith", BirthDate: "1985-09-01", Email: "jane@example.com",
	}); err != nil {
		t.Fatalf("AddSubject failed: %v", err)
	}

	next, err := s.NextUnusedSubject(ctx, "military")
	if err != nil {
		t.Fatalf("NextUnusedSubject failed: %v", err)
	}
	if next == nil || next.ID != id {
		t.Fatalf("unexpected roster entry: %+v", next)
	}
	// Insertion goes through Normalize, so names come back title-cased.
	if next.Record.FirstName != "John" || next.Record.LastName != "Doe" {
		t.Fatalf("expected normalized names, got %q %q", next.Record.FirstName, next.Record.LastName)
	}

	if err := s.MarkSubjectUsed(ctx, id); err != nil {
		t.Fatalf("MarkSubjectUsed failed: %v", err)
	}
	next, err = s.NextUnusedSubject(ctx, "military")
	if err != nil {
		t.Fatalf("NextUnusedSubject failed: %v", err)
	}
	if next != nil {
		t.Fatalf("expected exhausted roster, got %+v", next)
	}

	all, err := s.QuerySubjects(ctx, store.SubjectFilter{Profile: "military"})
	if err != nil {
		t.Fatalf("QuerySubjects failed: %v", err)
	}
	if len(all) != 1 || !all[0].Used || all[0].UsedAt == nil {
		t.Fatalf("expected used entry with timestamp, got %+v", all[0])
	}
}
