package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/daemon"
	"murmur/internal/logging"
	"murmur/internal/scheduler"
	"murmur/internal/store"
)

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	p := status.Pipeline
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = p.StartedAt
	resp.LockPath = status.LockFilePath
	resp.DatabasePath = status.DatabasePath
	resp.LogPath = status.LogPath
	resp.TaskStats = make(map[string]int, len(p.Tasks))
	for k, v := range p.Tasks {
		resp.TaskStats[string(k)] = v
	}
	resp.ReplyStats = make(map[string]int, len(p.Replies))
	for k, v := range p.Replies {
		resp.ReplyStats[string(k)] = v
	}
	resp.RunnableTasks = p.RunnableTasks
	resp.InFlightCycles = p.InFlightCycles
	resp.SeenCached = p.SeenCached
	resp.Templates = p.Templates
	for _, w := range p.ReplyWindows {
		resp.ReplyWindows = append(resp.ReplyWindows, RateWindow{
			AccountID:    w.AccountID,
			Cap:          w.Cap,
			Tokens:       w.Tokens,
			SentLastHour: w.SentLastHour,
			Reserved:     w.Reserved,
			WindowStart:  w.WindowStart,
		})
	}
	if p.LastDrain != nil {
		summary := drainSummaryToWire(*p.LastDrain)
		resp.LastDrain = &summary
	}
	if h := p.LastHousekeeping; h != nil {
		resp.LastHousekeeping = &Housekeeping{RanAt: h.RanAt, SeenPruned: h.SeenPruned, LogsRemoved: h.LogsRemoved}
	}
	return nil
}

func (s *service) TaskCreate(req TaskCreateRequest, resp *TaskResponse) error {
	coord := s.daemon.Pipeline()
	task, err := coord.CreateTask(s.ctx, scheduler.TaskConfig{
		Name:            req.Name,
		AccountID:       req.AccountID,
		Keywords:        req.Keywords,
		ExcludeKeywords: req.ExcludeKeywords,
		PollInterval:    time.Duration(req.PollIntervalSeconds) * time.Second,
		MinLength:       req.MinLength,
		MaxLength:       req.MaxLength,
		FilterSpam:      req.FilterSpam,
	})
	if err != nil {
		return err
	}
	if req.Start {
		if err := coord.StartTask(s.ctx, task.ID); err != nil {
			return fmt.Errorf("task %d created but not started: %w", task.ID, err)
		}
		if task, err = coord.GetTask(s.ctx, task.ID); err != nil {
			return err
		}
	}
	s.logger.Info("task created via IPC",
		logging.String(logging.FieldEventType, "task_create"),
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldAccountID, task.AccountID),
	)
	resp.Task = taskToWire(task)
	return nil
}

func (s *service) TaskStart(req TaskIDRequest, resp *TaskActionResponse) error {
	coord := s.daemon.Pipeline()
	if err := coord.StartTask(s.ctx, req.ID); err != nil {
		return err
	}
	return s.taskAction(req.ID, "task started", resp)
}

func (s *service) TaskStop(req TaskIDRequest, resp *TaskActionResponse) error {
	if err := s.daemon.Pipeline().StopTask(s.ctx, req.ID); err != nil {
		return err
	}
	return s.taskAction(req.ID, "task stopped", resp)
}

func (s *service) TaskDelete(req TaskIDRequest, resp *TaskActionResponse) error {
	if err := s.daemon.Pipeline().DeleteTask(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Message = fmt.Sprintf("task %d deleted", req.ID)
	return nil
}

func (s *service) taskAction(id int64, message string, resp *TaskActionResponse) error {
	task, err := s.daemon.Pipeline().GetTask(s.ctx, id)
	if err != nil {
		return err
	}
	wire := taskToWire(task)
	resp.Task = &wire
	resp.Message = message
	return nil
}

func (s *service) TaskList(req TaskListRequest, resp *TaskListResponse) error {
	statuses := make([]store.TaskStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		status := store.TaskStatus(raw)
		if !status.Valid() {
			return fmt.Errorf("unknown task status %q", raw)
		}
		statuses = append(statuses, status)
	}
	tasks, err := s.daemon.Pipeline().ListTasks(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Tasks = make([]Task, 0, len(tasks))
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, taskToWire(task))
	}
	return nil
}

func (s *service) ReplyList(req ReplyListRequest, resp *ReplyListResponse) error {
	statuses := make([]store.ReplyStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		status, ok := store.ParseReplyStatus(raw)
		if !ok {
			return fmt.Errorf("unknown reply status %q", raw)
		}
		statuses = append(statuses, status)
	}
	records, err := s.daemon.Pipeline().ListReplies(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Replies = make([]Reply, 0, len(records))
	for _, rec := range records {
		resp.Replies = append(resp.Replies, replyToWire(rec))
	}
	return nil
}

func (s *service) ReplyRetry(req ReplyIDRequest, resp *ReplyResponse) error {
	rec, err := s.daemon.Pipeline().RetryReply(s.ctx, req.ID)
	if err != nil {
		return err
	}
	s.logger.Info("reply re-queued via IPC",
		logging.String(logging.FieldEventType, "reply_retry"),
		logging.String(logging.FieldRecordID, rec.ID),
	)
	resp.Reply = replyToWire(rec)
	return nil
}

func (s *service) ReplyHistory(req ReplyIDRequest, resp *ReplyHistoryResponse) error {
	events, err := s.daemon.Pipeline().ReplyHistory(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Events = make([]ReplyEvent, 0, len(events))
	for _, ev := range events {
		resp.Events = append(resp.Events, ReplyEvent{
			Status:    string(ev.Status),
			Attempts:  ev.Attempts,
			Message:   ev.Message,
			CreatedAt: ev.CreatedAt,
		})
	}
	return nil
}

func (s *service) Drain(_ DrainRequest, resp *DrainResponse) error {
	summary, err := s.daemon.Pipeline().DrainNow(s.ctx)
	if err != nil {
		return err
	}
	resp.Summary = drainSummaryToWire(summary)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}
