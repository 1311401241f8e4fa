// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI. Load resolves ~/.config/veriflow/config.toml
// or a project-local veriflow.toml, applies defaults for anything unset, and
// rejects values the daemon cannot run with before any component starts.
package config
