package services_test

import (
	"errors"
	"testing"

	"veriflow/internal/services"
	"veriflow/internal/task"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrTransport, "collectMilitaryStatus", "post", "connection failed", base)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatal("expected wrapped error to match ErrTransport")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to retain the cause")
	}
}

func TestFailureStatus(t *testing.T) {
	rejection := &services.RejectionError{Step: "collectTeacherPersonalInfo", Reason: "ineligible"}
	if got := services.FailureStatus(rejection); got != task.StatusRejected {
		t.Fatalf("expected rejected, got %q", got)
	}
	if got := services.FailureStatus(services.Wrap(services.ErrProtocol, "docUpload", "", "missing field", nil)); got != task.StatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
	if got := services.FailureStatus(services.Wrap(services.ErrTransport, "docUpload", "", "timeout", nil)); got != task.StatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
}

func TestRejectionReason(t *testing.T) {
	rejection := &services.RejectionError{Reason: "notApproved"}
	wrapped := services.Wrap(services.ErrRejected, "step", "", "denied", rejection)
	if got := services.RejectionReason(wrapped); got != "notApproved" {
		t.Fatalf("expected notApproved, got %q", got)
	}
}
