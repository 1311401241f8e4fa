// Package logging wires slog for the daemon and CLI: a console handler for
// humans, a JSON handler for machines, and a stream handler that mirrors
// every record into an in-memory hub so live followers (the /api/logs
// endpoint and `veriflow logs --follow`) can tail the daemon without touching
// files. Well-known field keys (task_id, step, profile, correlation_id) are
// promoted to first-class event fields so followers can filter per task.
package logging
