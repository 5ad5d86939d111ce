// Package config loads, normalizes, and validates the TOML configuration
// for storyreel. Defaults live in defaults.go; the embedded sample config
// documents every key.
package config
