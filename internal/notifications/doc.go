// Package notifications pushes operator alerts to ntfy.
//
// Alerts cover the conditions that need a human: a task that stopped polling,
// an account session that needs re-authentication and a reply that exhausted
// its attempts. Each alert class can be switched off in config, and repeats of
// the same condition inside notifications.dedup_window_seconds are dropped.
// Without a topic the package hands out a no-op Service.
package notifications
