// Package pipeline wires the monitoring and reply components into one
// coordinator.
//
// The Coordinator owns a single instance of every moving part: scheduler,
// dispatcher, rate limiters, dedup index, classifier and template catalog.
// Start resumes running tasks and launches the scheduler loop, the cron
// entries for drain passes and hourly housekeeping, and the template
// watcher. Stop unwinds them in reverse and waits for in-flight work.
//
// The daemon talks to the pipeline only through the operator methods
// exposed here.
package pipeline
