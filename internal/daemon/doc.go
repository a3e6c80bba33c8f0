// Package daemon coordinates the long-running murmurd process.
//
// It wraps the pipeline coordinator in a single lifecycle guarded by a
// flock-based lock so only one daemon drives a given data directory. The
// IPC layer talks to the daemon; the daemon owns start/stop, status
// snapshots and notification tests.
package daemon
