// Package registry holds the authoritative in-memory state of every
// verification task. Mutation goes through Update, which applies the caller's
// function under the task's own lock and rejects mutation of terminal tasks.
// Committed snapshots flow to the progress hub so subscribers observe every
// transition in write order.
//
// Callers are trusted to keep logs append-only and the step index monotonic;
// the registry guarantees atomicity and terminal immutability, not the shape
// of individual mutations.
package registry
