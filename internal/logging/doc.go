// Package logging builds slog loggers with console and JSON handlers and
// carries standardized field names for pipeline observability.
package logging
