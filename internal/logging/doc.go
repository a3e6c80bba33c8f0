// Package logging assembles structured slog loggers and formatting helpers used
// across murmur components.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers that tag log lines with task IDs, account IDs, reply
// record IDs and correlation IDs stamped via the services package. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
