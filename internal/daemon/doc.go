// Package daemon assembles the verification engine: it opens the outcome
// store, loads workflow profiles, builds the runner and its collaborators,
// and serves the bearer-token HTTP API the CLI talks to. A flock-based lock
// file enforces one daemon instance per machine.
package daemon
