// Package task defines the verification task model shared across the engine:
// the status lifecycle, append-only progress log, and terminal result payload.
//
// Tasks move pending -> running -> one of the absorbing statuses (approved,
// rejected, pending_review, failed, cancelled). Once absorbing, a task is
// immutable; the registry enforces this, the model only describes it.
package task
