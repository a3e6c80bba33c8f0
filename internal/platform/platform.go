package platform

import (
	"context"
	"time"
)

// ContentKind distinguishes the places inbound content can come from.
type ContentKind string

const (
	KindComment       ContentKind = "comment"
	KindDirectMessage ContentKind = "direct_message"
	KindMention       ContentKind = "mention"
)

// Valid reports whether k is a known content kind.
func (k ContentKind) Valid() bool {
	switch k {
	case KindComment, KindDirectMessage, KindMention:
		return true
	default:
		return false
	}
}

// ContentItem is one piece of fetched inbound content. SourceID is the
// platform-unique identifier used as the dedup key.
type ContentItem struct {
	SourceID  string
	TaskID    int64
	AccountID string
	Author    string
	Body      string
	Timestamp time.Time
	Kind      ContentKind
	ParentID  string
}

// Session is a validated handle on an account's authenticated session.
type Session struct {
	AccountID string
	ID        string
	ExpiresAt time.Time
}

// Batch is the result of one bounded fetch. Items are ordered oldest first.
// Cursor, when non-empty, is an opaque resume position supplied by the platform.
type Batch struct {
	Items  []ContentItem
	Cursor string
}

// ReplyTarget addresses a reply at the content it answers.
type ReplyTarget struct {
	SourceID string
	Kind     ContentKind
	ParentID string
	Author   string
}

// SessionProvider validates and refreshes per-account sessions. Implementations
// return an error wrapping services.ErrSessionInvalid when re-authentication is
// required.
type SessionProvider interface {
	Validate(ctx context.Context, accountID string) (Session, error)
}

// Fetcher returns content newer than the watermark matching any keyword.
// Each call is finite; pagination happens inside the implementation.
type Fetcher interface {
	FetchSince(ctx context.Context, session Session, since Watermark, keywords []string) (Batch, error)
}

// Sender posts a reply through an account's session and returns the
// platform's identifier for the new reply.
type Sender interface {
	Send(ctx context.Context, session Session, target ReplyTarget, text string) (string, error)
}

// Composer produces reply text for content. The caller bounds the call with ctx.
type Composer interface {
	Compose(ctx context.Context, text, styleHint string, maxLength int) (string, error)
}
