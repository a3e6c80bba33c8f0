package ipc

import "time"

// StartRequest starts the pipeline inside a running daemon.
type StartRequest struct{}

// StartResponse indicates whether the pipeline was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the pipeline. The daemon process keeps serving IPC.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// RateWindow describes one account's reply budget.
type RateWindow struct {
	AccountID    string    `json:"account_id"`
	Cap          int       `json:"cap"`
	Tokens       float64   `json:"tokens"`
	SentLastHour int       `json:"sent_last_hour"`
	Reserved     int       `json:"reserved"`
	WindowStart  time.Time `json:"window_start"`
}

// DrainSummary mirrors one dispatcher drain pass.
type DrainSummary struct {
	CorrelationID string    `json:"correlation_id"`
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	Due           int       `json:"due"`
	Sent          int       `json:"sent"`
	Deferred      int       `json:"deferred"`
	Retrying      int       `json:"retrying"`
	Failed        int       `json:"failed"`
	Fallbacks     int       `json:"fallbacks"`
	Accounts      int       `json:"accounts"`
}

// Housekeeping mirrors the last housekeeping pass.
type Housekeeping struct {
	RanAt       time.Time `json:"ran_at"`
	SeenPruned  int64     `json:"seen_pruned"`
	LogsRemoved int       `json:"logs_removed"`
}

// StatusResponse represents combined daemon and pipeline status.
type StatusResponse struct {
	Running          bool           `json:"running"`
	PID              int            `json:"pid"`
	StartedAt        time.Time      `json:"started_at"`
	LockPath         string         `json:"lock_path"`
	DatabasePath     string         `json:"database_path"`
	LogPath          string         `json:"log_path"`
	TaskStats        map[string]int `json:"task_stats"`
	ReplyStats       map[string]int `json:"reply_stats"`
	RunnableTasks    int            `json:"runnable_tasks"`
	InFlightCycles   int            `json:"in_flight_cycles"`
	SeenCached       int            `json:"seen_cached"`
	Templates        int            `json:"templates"`
	ReplyWindows     []RateWindow   `json:"reply_windows"`
	LastDrain        *DrainSummary  `json:"last_drain,omitempty"`
	LastHousekeeping *Housekeeping  `json:"last_housekeeping,omitempty"`
}

// Task is the wire form of a monitor task.
type Task struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	AccountID           string     `json:"account_id"`
	Keywords            []string   `json:"keywords"`
	ExcludeKeywords     []string   `json:"exclude_keywords,omitempty"`
	PollIntervalSeconds int        `json:"poll_interval_seconds"`
	MinLength           int        `json:"min_length"`
	MaxLength           int        `json:"max_length"`
	FilterSpam          bool       `json:"filter_spam"`
	Status              string     `json:"status"`
	WatermarkAt         time.Time  `json:"watermark_at"`
	WatermarkCursor     string     `json:"watermark_cursor,omitempty"`
	LastPollAt          *time.Time `json:"last_poll_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	ItemsSeen           int64      `json:"items_seen"`
	RepliesQueued       int64      `json:"replies_queued"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TaskCreateRequest registers a task. Zero numeric fields take config defaults.
type TaskCreateRequest struct {
	Name                string   `json:"name"`
	AccountID           string   `json:"account_id"`
	Keywords            []string `json:"keywords"`
	ExcludeKeywords     []string `json:"exclude_keywords"`
	PollIntervalSeconds int      `json:"poll_interval_seconds"`
	MinLength           int      `json:"min_length"`
	MaxLength           int      `json:"max_length"`
	FilterSpam          *bool    `json:"filter_spam,omitempty"`
	Start               bool     `json:"start"`
}

// TaskResponse carries one task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TaskIDRequest addresses a single task.
type TaskIDRequest struct {
	ID int64 `json:"id"`
}

// TaskActionResponse reports the result of start/stop/delete.
type TaskActionResponse struct {
	Message string `json:"message"`
	Task    *Task  `json:"task,omitempty"`
}

// TaskListRequest filters tasks by status.
type TaskListRequest struct {
	Statuses []string `json:"statuses"`
}

// TaskListResponse contains tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// Reply is the wire form of a reply record.
type Reply struct {
	ID              string     `json:"id"`
	SourceID        string     `json:"source_id"`
	TaskID          int64      `json:"task_id"`
	AccountID       string     `json:"account_id"`
	Author          string     `json:"author"`
	SourceText      string     `json:"source_text"`
	Kind            string     `json:"kind"`
	Category        string     `json:"category"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
	TemplateID      string     `json:"template_id,omitempty"`
	Priority        int        `json:"priority"`
	Mode            string     `json:"mode"`
	Text            string     `json:"text,omitempty"`
	ComposeSource   string     `json:"compose_source,omitempty"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	NextAttemptAt   time.Time  `json:"next_attempt_at"`
	PlatformReplyID string     `json:"platform_reply_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}

// ReplyEvent is one status transition of a reply.
type ReplyEvent struct {
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplyListRequest filters replies by status.
type ReplyListRequest struct {
	Statuses []string `json:"statuses"`
}

// ReplyListResponse contains replies.
type ReplyListResponse struct {
	Replies []Reply `json:"replies"`
}

// ReplyIDRequest addresses a single reply record.
type ReplyIDRequest struct {
	ID string `json:"id"`
}

// ReplyResponse carries one reply.
type ReplyResponse struct {
	Reply Reply `json:"reply"`
}

// ReplyHistoryResponse lists the transitions of one reply.
type ReplyHistoryResponse struct {
	Events []ReplyEvent `json:"events"`
}

// DrainRequest triggers an immediate drain pass.
type DrainRequest struct{}

// DrainResponse reports the drain pass.
type DrainResponse struct {
	Summary DrainSummary `json:"summary"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
