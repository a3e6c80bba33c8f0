// Package services defines shared utilities consumed by the pipeline
// components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, account IDs, reply record IDs and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can decide
//     between retry, task failure and operator review with errors.Is.
//
// Subpackages hold the concrete clients for the platform bridge and the AI
// composer backends.
package services
