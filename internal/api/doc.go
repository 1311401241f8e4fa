// Package api defines the HTTP wire types for the daemon's REST surface and
// the service layer the handlers delegate to.
//
// # Key Types
//
//   - TaskView / ResultView / LogEntryView: JSON projections of task state.
//   - SubmitRequest: starts a verification task from an inline subject or a
//     stored roster entry.
//   - EventsResponse: one long-poll page of task snapshots with a cursor.
//   - OutcomeView: projection of a persisted terminal outcome.
//
// # Converters
//
// FromTask, FromTasks, FromOutcome, FromOutcomes, and FromDefinition map
// internal state to wire types. Timestamps render in RFC 3339 with
// millisecond precision; empty optional fields are omitted.
//
// # Design Notes
//
// The service holds no state of its own. Live task state comes from the
// in-memory registry, progress comes from the snapshot hub, and anything the
// registry no longer knows falls back to the outcome store so finished tasks
// stay addressable across daemon restarts. All JSON field names are
// camelCase.
package api
