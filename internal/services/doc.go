// Package services defines shared utilities consumed by the workflow runner
// and the external-service clients.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, step names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent task statuses (retryable transport faults, terminal
//     protocol faults, remote rejections).
//
// Use these helpers when wiring new step logic so operational behaviour
// (error handling, observability, retries) stays uniform across profiles.
package services
