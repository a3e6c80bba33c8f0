// Package scheduler polls monitor tasks for new content.
//
// Running tasks sit on a runnable ring. A single loop walks the ring
// round-robin and hands each due task to a bounded pool of cycle workers. A
// cycle validates the account session, fetches everything newer than the
// task watermark, filters, deduplicates and classifies each item in fetch
// order, submits it to the reply dispatcher, and finally advances the
// watermark in one write.
//
// Stop is cooperative: a cycle already in flight runs to completion,
// including its watermark write, before the task is marked stopped.
package scheduler
