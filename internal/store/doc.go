// Package store persists subject rosters and terminal verification outcomes
// in SQLite. The registry owns in-flight task state; this package only sees
// a task once, when the runner records its terminal snapshot.
package store
