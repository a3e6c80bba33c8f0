package pipeline

import (
	"context"
	"sort"
	"time"

	"murmur/internal/dispatch"
	"murmur/internal/ratelimit"
	"murmur/internal/scheduler"
	"murmur/internal/store"
)

// CreateTask registers a new monitoring task in the created state.
func (c *Coordinator) CreateTask(ctx context.Context, req scheduler.TaskConfig) (*store.Task, error) {
	return c.scheduler.CreateTask(ctx, req)
}

// StartTask begins polling a task.
func (c *Coordinator) StartTask(ctx context.Context, id int64) error {
	return c.scheduler.Start(ctx, id)
}

// StopTask halts a running task after its in-flight cycle finishes.
func (c *Coordinator) StopTask(ctx context.Context, id int64) error {
	return c.scheduler.Stop(ctx, id)
}

// DeleteTask removes a task, stopping it first when running.
func (c *Coordinator) DeleteTask(ctx context.Context, id int64) error {
	return c.scheduler.Delete(ctx, id)
}

// GetTask returns a single task.
func (c *Coordinator) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	return c.scheduler.Get(ctx, id)
}

// ListTasks returns tasks filtered by status.
func (c *Coordinator) ListTasks(ctx context.Context, statuses ...store.TaskStatus) ([]*store.Task, error) {
	return c.scheduler.List(ctx, statuses...)
}

// ListReplies returns reply records filtered by status.
func (c *Coordinator) ListReplies(ctx context.Context, statuses ...store.ReplyStatus) ([]*store.ReplyRecord, error) {
	return c.dispatcher.List(ctx, statuses...)
}

// RetryReply re-queues a failed reply for the next drain.
func (c *Coordinator) RetryReply(ctx context.Context, id string) (*store.ReplyRecord, error) {
	return c.dispatcher.Retry(ctx, id)
}

// ReplyHistory returns the status transitions of one reply.
func (c *Coordinator) ReplyHistory(ctx context.Context, id string) ([]store.ReplyEvent, error) {
	return c.dispatcher.History(ctx, id)
}

// DrainNow runs a drain pass immediately. It serialises with scheduled passes.
func (c *Coordinator) DrainNow(ctx context.Context) (dispatch.DrainSummary, error) {
	return c.dispatcher.Drain(ctx)
}

// TestNotification sends a test alert through the configured notifier.
func (c *Coordinator) TestNotification(ctx context.Context) error {
	return c.notifier.TestNotification(ctx)
}

// Status is a point-in-time snapshot of the pipeline.
type Status struct {
	Running          bool
	StartedAt        time.Time
	Tasks            map[store.TaskStatus]int
	Replies          map[store.ReplyStatus]int
	RunnableTasks    int
	InFlightCycles   int
	SeenCached       int
	Templates        int
	ReplyWindows     []ratelimit.Window
	LastDrain        *dispatch.DrainSummary
	LastHousekeeping *HousekeepingResult
}

// Status collects counters from every component.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	status := Status{Running: c.running, StartedAt: c.startedAt}
	c.mu.Unlock()

	var err error
	if status.Tasks, err = c.store.TaskStats(ctx); err != nil {
		return Status{}, err
	}
	if status.Replies, err = c.store.ReplyStats(ctx); err != nil {
		return Status{}, err
	}
	status.RunnableTasks, status.InFlightCycles = c.scheduler.Stats()
	status.SeenCached = c.dedup.Size()
	status.Templates = c.catalog.Len()
	status.LastDrain = c.dispatcher.LastDrain()

	c.houseMu.Lock()
	if c.lastHousekeep != nil {
		copied := *c.lastHousekeep
		status.LastHousekeeping = &copied
	}
	c.houseMu.Unlock()

	tasks, err := c.scheduler.List(ctx)
	if err != nil {
		return Status{}, err
	}
	accounts := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		accounts[task.AccountID] = struct{}{}
	}
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		window, err := c.replies.Snapshot(ctx, id)
		if err != nil {
			return Status{}, err
		}
		status.ReplyWindows = append(status.ReplyWindows, window)
	}
	return status, nil
}
