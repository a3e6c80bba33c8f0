// Package preflight provides readiness checks for the paths and external
// services murmurd depends on.
//
// The daemon logs RunAll results at startup; the CLI "murmur status"
// command renders them when the daemon is offline. AI checks are skipped
// when AI composition is disabled.
package preflight
