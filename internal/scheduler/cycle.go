package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"murmur/internal/classifier"
	"murmur/internal/logging"
	"murmur/internal/platform"
	"murmur/internal/services"
	"murmur/internal/store"
)

// cycleStats summarizes one processed batch.
type cycleStats struct {
	fetched  int
	fresh    int
	filtered int
	queued   int
	dupes    int
}

func (s *Scheduler) runCycle(ctx context.Context, e *entry) {
	var next *time.Duration
	defer func() {
		if r := recover(); r != nil {
			s.failTask(ctx, e.id, "", fmt.Errorf("cycle panic: %v", r))
			next = nil
		}
		s.finish(ctx, e, next)
	}()
	next = s.cycle(ctx, e.id)
}

// cycle runs one poll of task id and returns when it should run next, or nil
// when the task left the running state.
func (s *Scheduler) cycle(ctx context.Context, id int64) *time.Duration {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.logger.Warn("load task failed", logging.Int64(logging.FieldTaskID, id), logging.Error(err))
		return durationPtr(s.retry.Delay(1))
	}
	if task == nil || task.Status != store.TaskRunning {
		return nil
	}

	ctx = services.WithAccountID(services.WithTaskID(ctx, task.ID), task.AccountID)
	logger := logging.WithContext(ctx, s.logger)
	interval := task.PollInterval

	if s.polls != nil && !s.polls.Allow(ctx, task.AccountID) {
		logger.Debug("poll budget exhausted; deferring cycle",
			logging.String(logging.FieldEventType, "poll_deferred"),
		)
		return durationPtr(interval)
	}

	polledAt := s.now()
	var batch platform.Batch
	err = s.guard.WithSession(ctx, task.AccountID, func(ctx context.Context, sess platform.Session) error {
		var fetchErr error
		batch, fetchErr = s.fetcher.FetchSince(ctx, sess, task.Watermark, task.Keywords)
		return fetchErr
	})
	if err == nil {
		var stats cycleStats
		stats, err = s.process(ctx, task, batch)
		if err == nil {
			return s.commit(ctx, task, batch, stats, polledAt)
		}
	}

	switch {
	case ctx.Err() != nil:
		logger.Debug("cycle interrupted by shutdown")
		return durationPtr(interval)
	case errors.Is(err, services.ErrSessionInvalid):
		s.failTask(ctx, task.ID, task.AccountID, err)
		if nerr := s.notifier.NotifySessionInvalid(ctx, task.AccountID, task.ID); nerr != nil {
			logger.Warn("session notification failed", logging.Error(nerr))
		}
		return nil
	default:
		return s.recordFailure(ctx, task, err, polledAt)
	}
}

// process walks the batch in fetch order. Items already in the dedup index
// are skipped; everything else is filtered or classified and submitted, then
// recorded as seen.
func (s *Scheduler) process(ctx context.Context, task *store.Task, batch platform.Batch) (cycleStats, error) {
	stats := cycleStats{fetched: len(batch.Items)}
	logger := logging.WithContext(ctx, s.logger)

	for _, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item.TaskID = task.ID
		if item.AccountID == "" {
			item.AccountID = task.AccountID
		}
		if item.SourceID == "" {
			logger.Warn("dropping item without source id", logging.String("author", item.Author))
			continue
		}

		seen, err := s.dedup.Seen(ctx, item.SourceID)
		if err != nil {
			return stats, fmt.Errorf("dedup lookup %s: %w", item.SourceID, err)
		}
		if seen {
			continue
		}
		stats.fresh++

		if reason := s.filter(task, item); reason != "" {
			stats.filtered++
			logger.Debug("item filtered",
				logging.String(logging.FieldSourceID, item.SourceID),
				logging.String("reason", reason),
			)
		} else {
			classified := s.classifier.Classify(item, task.Keywords)
			_, err := s.submitter.Submit(ctx, classified)
			switch {
			case errors.Is(err, services.ErrDuplicateReply):
				stats.dupes++
				logger.Debug("reply already recorded",
					logging.String(logging.FieldSourceID, item.SourceID),
				)
			case err != nil:
				return stats, fmt.Errorf("submit %s: %w", item.SourceID, err)
			default:
				stats.queued++
			}
		}

		if _, err := s.dedup.Record(ctx, item.SourceID, task.ID); err != nil {
			return stats, fmt.Errorf("dedup record %s: %w", item.SourceID, err)
		}
	}
	return stats, nil
}

// filter applies the task content filters and returns the rejection reason.
func (s *Scheduler) filter(task *store.Task, item platform.ContentItem) string {
	body := strings.TrimSpace(item.Body)
	length := utf8.RuneCountInString(body)
	if length < task.MinLength {
		return "too_short"
	}
	if task.MaxLength > 0 && length > task.MaxLength {
		return "too_long"
	}
	for _, kw := range task.ExcludeKeywords {
		if classifier.ContainsFold(body, kw) {
			return "excluded_keyword"
		}
	}
	if task.FilterSpam && s.classifier.IsSpam(body) {
		return "spam"
	}
	return ""
}

// commit advances the watermark once for the whole batch together with the
// cycle counters.
func (s *Scheduler) commit(ctx context.Context, task *store.Task, batch platform.Batch, stats cycleStats, polledAt time.Time) *time.Duration {
	logger := logging.WithContext(ctx, s.logger)
	watermark := task.Watermark.Advance(batch)
	err := s.store.RecordCycle(ctx, task.ID, store.CycleOutcome{
		Watermark:     watermark,
		PolledAt:      polledAt,
		ItemsSeen:     stats.fresh,
		RepliesQueued: stats.queued,
	})
	switch {
	case errors.Is(err, services.ErrNotFound):
		return nil
	case err != nil:
		return s.recordFailure(ctx, task, fmt.Errorf("persist cycle: %w", err), polledAt)
	}

	level := logger.Debug
	if stats.queued > 0 {
		level = logger.Info
	}
	level("cycle complete",
		logging.String(logging.FieldEventType, "cycle_complete"),
		logging.Int("fetched", stats.fetched),
		logging.Int("new", stats.fresh),
		logging.Int("filtered", stats.filtered),
		logging.Int("queued", stats.queued),
		logging.Int("duplicates", stats.dupes),
		logging.Time("watermark", watermark.At),
	)
	return durationPtr(task.PollInterval)
}

// recordFailure counts a failed cycle. Below the threshold the task retries
// after the longer of its interval and the backoff delay; at the threshold it
// is marked failed.
func (s *Scheduler) recordFailure(ctx context.Context, task *store.Task, cause error, polledAt time.Time) *time.Duration {
	logger := logging.WithContext(ctx, s.logger)
	failures := task.ConsecutiveFailures + 1
	if err := s.store.RecordTaskFailure(ctx, task.ID, failures, cause.Error(), polledAt); err != nil {
		logger.Warn("persist cycle failure failed", logging.Error(err))
	}

	threshold := s.cfg.FailureThreshold
	if threshold > 0 && failures >= threshold {
		s.failTask(ctx, task.ID, task.AccountID, fmt.Errorf("%d consecutive failures: %w", failures, cause))
		return nil
	}

	delay := max(task.PollInterval, s.retry.Delay(failures))
	logging.WarnWithContext(logger, "poll cycle failed", "cycle_failed",
		logging.Error(cause),
		logging.Int("consecutive_failures", failures),
		logging.Duration("retry_in", delay),
		logging.String(logging.FieldErrorHint, services.Hint(cause)),
	)
	return durationPtr(delay)
}

// failTask marks a task failed and raises a notification for everything but
// session loss, which has its own alert.
func (s *Scheduler) failTask(ctx context.Context, id int64, accountID string, cause error) {
	writeCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, s.logger)
	if err := s.store.SetTaskStatus(writeCtx, id, store.TaskFailed, cause.Error()); err != nil {
		logger.Error("persist task failure failed", logging.Int64(logging.FieldTaskID, id), logging.Error(err))
	}
	logging.ErrorWithContext(logger, "task failed", "task_failed",
		logging.Int64(logging.FieldTaskID, id),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.Hint(cause)),
		logging.String(logging.FieldImpact, "task stopped polling until restarted"),
	)
	if errors.Is(cause, services.ErrSessionInvalid) {
		return
	}
	if err := s.notifier.NotifyTaskFailed(writeCtx, id, accountID, cause.Error()); err != nil {
		logger.Warn("task failure notification failed", logging.Error(err))
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
