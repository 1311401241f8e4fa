// Package workflow defines verification profiles and executes them.
//
// A Definition is a declarative step graph loaded from TOML: each step names
// a remote protocol step, the fields it needs, and either its sequential
// successor or a branch table keyed by the status the remote reports back.
// Definitions are validated when loaded; a definition that compiles cannot
// hit an unresolved step reference at runtime.
//
// The Runner executes one goroutine per task. It validates the subject
// record, walks the step graph calling the injected StepClient, retries
// transport failures with backoff, and converts every step error into a task
// state transition — callers observe outcomes only through the registry,
// never through returned errors. Cancellation is cooperative and takes
// effect between steps; an issued remote call always runs to completion or
// its own timeout.
//
// Add new verification profiles by dropping a TOML definition into the
// configured profile directory; the runner needs no code changes as long as
// the steps use the existing step kinds.
package workflow
