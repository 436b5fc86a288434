// Package logging assembles the structured slog loggers used by localipc.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// attribute helpers IPC components use to tag log lines with endpoint names,
// connection ids and close reasons. A no-op logger is provided for tests and
// wiring code that has nothing to log to.
package logging
