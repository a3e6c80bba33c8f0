package ipc

import (
	"murmur/internal/dispatch"
	"murmur/internal/store"
)

func taskToWire(task *store.Task) Task {
	return Task{
		ID:                  task.ID,
		Name:                task.Name,
		AccountID:           task.AccountID,
		Keywords:            task.Keywords,
		ExcludeKeywords:     task.ExcludeKeywords,
		PollIntervalSeconds: int(task.PollInterval.Seconds()),
		MinLength:           task.MinLength,
		MaxLength:           task.MaxLength,
		FilterSpam:          task.FilterSpam,
		Status:              string(task.Status),
		WatermarkAt:         task.Watermark.At,
		WatermarkCursor:     task.Watermark.Cursor,
		LastPollAt:          task.LastPollAt,
		LastError:           task.LastError,
		ConsecutiveFailures: task.ConsecutiveFailures,
		ItemsSeen:           task.ItemsSeen,
		RepliesQueued:       task.RepliesQueued,
		CreatedAt:           task.CreatedAt,
		UpdatedAt:           task.UpdatedAt,
	}
}

func replyToWire(rec *store.ReplyRecord) Reply {
	return Reply{
		ID:              rec.ID,
		SourceID:        rec.SourceID,
		TaskID:          rec.TaskID,
		AccountID:       rec.AccountID,
		Author:          rec.Author,
		SourceText:      rec.SourceText,
		Kind:            string(rec.Kind),
		Category:        rec.Category,
		MatchedKeywords: rec.MatchedKeywords,
		TemplateID:      rec.TemplateID,
		Priority:        rec.Priority,
		Mode:            rec.Mode,
		Text:            rec.Text,
		ComposeSource:   string(rec.ComposeSource),
		Status:          string(rec.Status),
		Attempts:        rec.Attempts,
		LastError:       rec.LastError,
		NextAttemptAt:   rec.NextAttemptAt,
		PlatformReplyID: rec.PlatformReplyID,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		SentAt:          rec.SentAt,
	}
}

func drainSummaryToWire(s dispatch.DrainSummary) DrainSummary {
	return DrainSummary{
		CorrelationID: s.CorrelationID,
		StartedAt:     s.StartedAt,
		DurationMS:    s.Duration.Milliseconds(),
		Due:           s.Due,
		Sent:          s.Sent,
		Deferred:      s.Deferred,
		Retrying:      s.Retrying,
		Failed:        s.Failed,
		Fallbacks:     s.Fallbacks,
		Accounts:      s.Accounts,
	}
}
