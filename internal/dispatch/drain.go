package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"murmur/internal/logging"
	"murmur/internal/platform"
	"murmur/internal/services"
	"murmur/internal/store"
)

// DrainSummary reports what one drain pass did.
type DrainSummary struct {
	CorrelationID string
	StartedAt     time.Time
	Duration      time.Duration
	Due           int
	Sent          int
	Deferred      int
	Retrying      int
	Failed        int
	Fallbacks     int
	Accounts      int
}

func (s *DrainSummary) merge(o DrainSummary) {
	s.Sent += o.Sent
	s.Deferred += o.Deferred
	s.Retrying += o.Retrying
	s.Failed += o.Failed
	s.Fallbacks += o.Fallbacks
}

// Drain runs one pass over records due now. Accounts are worked concurrently
// up to dispatch.workers; records of one account go out sequentially in
// priority order. When an account's rate limit is exhausted its remaining
// records wait for the next pass.
func (d *Dispatcher) Drain(ctx context.Context) (DrainSummary, error) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	started := d.now()
	summary := DrainSummary{CorrelationID: uuid.NewString(), StartedAt: started}
	ctx = services.WithRequestID(ctx, summary.CorrelationID)
	logger := logging.WithContext(ctx, d.logger)

	due, err := d.store.DueReplies(ctx, started.UTC(), d.batchSize)
	if err != nil {
		return summary, fmt.Errorf("load due replies: %w", err)
	}
	summary.Due = len(due)
	if len(due) == 0 {
		d.remember(summary)
		return summary, nil
	}

	var order []string
	byAccount := make(map[string][]*store.ReplyRecord)
	for _, rec := range due {
		if _, ok := byAccount[rec.AccountID]; !ok {
			order = append(order, rec.AccountID)
		}
		byAccount[rec.AccountID] = append(byAccount[rec.AccountID], rec)
	}
	summary.Accounts = len(order)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, account := range order {
		records := byAccount[account]
		g.Go(func() error {
			part, err := d.drainAccount(gctx, account, records)
			mu.Lock()
			summary.merge(part)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	summary.Duration = d.now().Sub(started)
	d.remember(summary)
	level := logger.Debug
	if summary.Sent > 0 || summary.Failed > 0 {
		level = logger.Info
	}
	level("drain pass complete",
		logging.String(logging.FieldEventType, "drain_complete"),
		logging.Int("due", summary.Due),
		logging.Int("sent", summary.Sent),
		logging.Int("deferred", summary.Deferred),
		logging.Int("retrying", summary.Retrying),
		logging.Int("failed", summary.Failed),
		logging.Int("fallbacks", summary.Fallbacks),
		logging.Duration("duration", summary.Duration),
	)
	return summary, err
}

func (d *Dispatcher) remember(summary DrainSummary) {
	d.lastMu.Lock()
	d.lastDrain = &summary
	d.lastMu.Unlock()
}

// drainAccount sends one account's records in order. Only persistence
// failures are returned; send failures are recorded on the record.
func (d *Dispatcher) drainAccount(ctx context.Context, accountID string, records []*store.ReplyRecord) (DrainSummary, error) {
	var part DrainSummary
	ctx = services.WithAccountID(ctx, accountID)
	for i, rec := range records {
		if ctx.Err() != nil {
			part.Deferred += len(records) - i
			return part, nil
		}
		if !d.limiter.TryAcquire(ctx, accountID) {
			part.Deferred += len(records) - i
			logging.WithContext(ctx, d.logger).Debug("reply budget exhausted; deferring",
				logging.String(logging.FieldEventType, "reply_deferred"),
				logging.Int("remaining", len(records)-i),
			)
			return part, nil
		}
		outcome, err := d.deliver(ctx, rec)
		switch outcome {
		case outcomeSent:
			part.Sent++
		case outcomeRetry:
			part.Retrying++
		case outcomeFailed:
			part.Failed++
		case outcomeInterrupted:
			part.Deferred += len(records) - i
			return part, err
		}
		if rec.ComposeSource == store.ComposedFromFallback && outcome != outcomeInterrupted {
			part.Fallbacks++
		}
		if err != nil {
			return part, err
		}
	}
	return part, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetry
	outcomeFailed
	outcomeInterrupted
)

// deliver composes and sends one record while holding a rate reservation,
// then persists the result. The reservation is committed on success and
// released otherwise.
func (d *Dispatcher) deliver(ctx context.Context, rec *store.ReplyRecord) (outcome, error) {
	ctx = services.WithRecordID(ctx, rec.ID)
	logger := logging.WithContext(ctx, d.logger)

	if rec.Text == "" {
		rec.Text, rec.ComposeSource = d.compose(ctx, rec)
	}

	var replyID string
	sendErr := d.guard.WithSession(ctx, rec.AccountID, func(ctx context.Context, sess platform.Session) error {
		var err error
		replyID, err = d.sender.Send(ctx, sess, rec.Target(), rec.Text)
		return err
	})

	if sendErr != nil && ctx.Err() != nil {
		d.limiter.Release(ctx, rec.AccountID)
		return outcomeInterrupted, nil
	}

	now := d.now().UTC()
	rec.Attempts++
	writeCtx := context.WithoutCancel(ctx)

	if sendErr == nil {
		d.limiter.Commit(ctx, rec.AccountID)
		rec.Status = store.ReplySent
		rec.SentAt = &now
		rec.LastError = ""
		rec.PlatformReplyID = replyID
		if err := d.store.UpdateReply(writeCtx, rec, "sent"); err != nil {
			return outcomeSent, fmt.Errorf("persist sent reply %s: %w", rec.ID, err)
		}
		logger.Info("reply sent",
			logging.String(logging.FieldEventType, "reply_sent"),
			logging.String(logging.FieldSourceID, rec.SourceID),
			logging.String("compose_source", string(rec.ComposeSource)),
			logging.Int("attempts", rec.Attempts),
		)
		return outcomeSent, nil
	}

	d.limiter.Release(ctx, rec.AccountID)
	rec.LastError = sendErr.Error()
	if rec.Attempts >= d.maxAttempts {
		rec.Status = store.ReplyFailed
		if err := d.store.UpdateReply(writeCtx, rec, "send failed; attempts exhausted"); err != nil {
			return outcomeFailed, fmt.Errorf("persist failed reply %s: %w", rec.ID, err)
		}
		logging.ErrorWithContext(logger, "reply failed", "reply_failed",
			logging.String(logging.FieldSourceID, rec.SourceID),
			logging.Int("attempts", rec.Attempts),
			logging.Error(sendErr),
			logging.String(logging.FieldErrorHint, services.Hint(sendErr)),
		)
		if err := d.notifier.NotifyReplyFailed(writeCtx, rec.ID, rec.AccountID, rec.LastError); err != nil {
			logger.Warn("reply failure notification failed", logging.Error(err))
		}
		return outcomeFailed, nil
	}

	delay := d.retry.Delay(rec.Attempts)
	rec.NextAttemptAt = now.Add(delay)
	if err := d.store.UpdateReply(writeCtx, rec, fmt.Sprintf("send failed; retry in %s", delay)); err != nil {
		return outcomeRetry, fmt.Errorf("persist retrying reply %s: %w", rec.ID, err)
	}
	logging.WarnWithContext(logger, "reply send failed; will retry", "reply_retry_scheduled",
		logging.String(logging.FieldSourceID, rec.SourceID),
		logging.Int("attempts", rec.Attempts),
		logging.Duration("retry_in", delay),
		logging.Error(sendErr),
		logging.String(logging.FieldErrorHint, services.Hint(sendErr)),
		logging.String(logging.FieldImpact, "reply delayed"),
	)
	return outcomeRetry, nil
}
