package services

import (
	"errors"
	"fmt"
	"strings"

	"veriflow/internal/task"
)

var (
	// ErrTransport marks transient network failures. The runner retries these
	// with backoff before giving up.
	ErrTransport = errors.New("transport error")
	// ErrProtocol marks structural failures in request construction or
	// document generation. Repeating the call cannot help, so the runner
	// fails the task immediately.
	ErrProtocol = errors.New("protocol error")
	// ErrRejected marks an explicit eligibility denial by the remote
	// verifier. An expected business outcome, not an engine fault.
	ErrRejected = errors.New("remote rejected")
	// ErrDefinition marks a malformed workflow definition. Raised at load
	// time only; no task is created once it surfaces.
	ErrDefinition = errors.New("definition error")
	// ErrConfiguration marks missing or invalid engine configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups of unknown tasks or subjects.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes step context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a step error to the terminal status the runner should
// record after retries (if any) are exhausted.
func FailureStatus(err error) task.Status {
	if errors.Is(err, ErrRejected) {
		return task.StatusRejected
	}
	return task.StatusFailed
}

// RejectionError carries the remote verifier's denial reason so the task
// result can expose it verbatim. It matches ErrRejected under errors.Is.
type RejectionError struct {
	Step   string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("remote rejected: %s: %s", e.Step, e.Reason)
	}
	return "remote rejected: " + e.Reason
}

func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

// RejectionReason extracts the denial reason when err represents a remote
// rejection, falling back to the raw error text.
func RejectionReason(err error) string {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
