package store

import (
	"time"

	"murmur/internal/platform"
)

// TaskStatus represents the lifecycle of a monitor task.
type TaskStatus string

const (
	TaskCreated TaskStatus = "created"
	TaskRunning TaskStatus = "running"
	TaskStopped TaskStatus = "stopped"
	TaskFailed  TaskStatus = "failed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskCreated, TaskRunning, TaskStopped, TaskFailed:
		return true
	default:
		return false
	}
}

// TaskSpec carries the operator-supplied settings for a new task.
type TaskSpec struct {
	Name            string
	AccountID       string
	Keywords        []string
	ExcludeKeywords []string
	PollInterval    time.Duration
	MinLength       int
	MaxLength       int
	FilterSpam      bool
}

// Task is a persisted monitor task. Status, watermark and counters are
// written only by the scheduler.
type Task struct {
	ID                  int64
	Name                string
	AccountID           string
	Keywords            []string
	ExcludeKeywords     []string
	PollInterval        time.Duration
	MinLength           int
	MaxLength           int
	FilterSpam          bool
	Status              TaskStatus
	Watermark           platform.Watermark
	LastPollAt          *time.Time
	LastError           string
	ConsecutiveFailures int
	ItemsSeen           int64
	RepliesQueued       int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CycleOutcome is what a completed poll cycle persists in one write.
type CycleOutcome struct {
	Watermark     platform.Watermark
	PolledAt      time.Time
	ItemsSeen     int
	RepliesQueued int
}

// ReplyStatus represents the lifecycle of a reply record.
type ReplyStatus string

const (
	ReplyPending ReplyStatus = "pending"
	ReplySent    ReplyStatus = "sent"
	ReplyFailed  ReplyStatus = "failed"
	ReplySkipped ReplyStatus = "skipped"
)

// AllReplyStatuses lists reply statuses in display order.
var AllReplyStatuses = []ReplyStatus{ReplyPending, ReplySent, ReplyFailed, ReplySkipped}

// ParseReplyStatus maps a status name onto a ReplyStatus.
func ParseReplyStatus(value string) (ReplyStatus, bool) {
	for _, status := range AllReplyStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// ComposeSource records where the reply text came from.
type ComposeSource string

const (
	ComposedFromTemplate ComposeSource = "template"
	ComposedByAI         ComposeSource = "ai"
	ComposedFromFallback ComposeSource = "fallback"
)

// ReplyRecord is the durable state of one intended reply. There is at most
// one record per SourceID and records are never deleted.
type ReplyRecord struct {
	ID              string
	SourceID        string
	TaskID          int64
	AccountID       string
	Author          string
	SourceText      string
	Kind            platform.ContentKind
	ParentID        string
	Category        string
	MatchedKeywords []string
	TemplateID      string
	Priority        int
	Mode            string
	Text            string
	ComposeSource   ComposeSource
	Status          ReplyStatus
	Attempts        int
	LastError       string
	NextAttemptAt   time.Time
	PlatformReplyID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SentAt          *time.Time
}

// Target returns the platform address of the content this record answers.
func (r *ReplyRecord) Target() platform.ReplyTarget {
	return platform.ReplyTarget{
		SourceID: r.SourceID,
		Kind:     r.Kind,
		ParentID: r.ParentID,
		Author:   r.Author,
	}
}

// ReplyEvent is one audit row appended on every reply record transition.
type ReplyEvent struct {
	ID        int64
	RecordID  string
	Status    ReplyStatus
	Attempts  int
	Message   string
	CreatedAt time.Time
}

// ReplyFilter narrows ListReplies. Zero values mean no constraint.
type ReplyFilter struct {
	Statuses  []ReplyStatus
	TaskID    int64
	AccountID string
	Limit     int
}

// RateWindow is the persisted state of one account's rate limiter.
type RateWindow struct {
	Kind        string
	AccountID   string
	Cap         int
	Tokens      float64
	RefilledAt  time.Time
	SentCount   int
	WindowStart time.Time
	Sends       []time.Time
	UpdatedAt   time.Time
}
