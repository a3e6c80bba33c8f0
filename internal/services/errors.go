package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidConfig  = errors.New("invalid config")
	ErrSessionInvalid = errors.New("session invalid")
	ErrFetchTransient = errors.New("transient fetch failure")
	ErrComposer       = errors.New("composer failure")
	ErrDuplicateReply = errors.New("duplicate reply")
	ErrSendFailed     = errors.New("send failed")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrTimeout        = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification with errors.Is. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFetchTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether err describes a condition the next cycle may clear.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrDuplicateReply), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState):
		return false
	default:
		return true
	}
}

// Hint returns a short operator-facing next step for a classified error.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrSessionInvalid):
		return "re-authenticate the account, then start the task again"
	case errors.Is(err, ErrInvalidConfig):
		return "fix the task settings and recreate it"
	case errors.Is(err, ErrFetchTransient):
		return "retried automatically; check the platform bridge if it persists"
	case errors.Is(err, ErrComposer), errors.Is(err, ErrTimeout):
		return "check the AI composer endpoint and credentials"
	case errors.Is(err, ErrSendFailed):
		return "inspect the reply history, then retry it from the CLI"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
