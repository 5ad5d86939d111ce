// Package notifications pushes run and error events to an ntfy topic. An
// empty topic disables delivery without changing call sites.
package notifications
