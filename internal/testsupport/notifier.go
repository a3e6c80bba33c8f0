package testsupport

import (
	"context"
	"fmt"
	"sync"
)

// RecordingNotifier captures notifications instead of sending them.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []string
}

// Events returns the recorded notifications as "kind:subject" strings.
func (n *RecordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *RecordingNotifier) record(event string) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *RecordingNotifier) NotifyTaskFailed(_ context.Context, taskID int64, _ string, _ string) error {
	return n.record(fmt.Sprintf("task_failed:%d", taskID))
}

func (n *RecordingNotifier) NotifySessionInvalid(_ context.Context, accountID string, _ int64) error {
	return n.record("session_invalid:" + accountID)
}

func (n *RecordingNotifier) NotifyReplyFailed(_ context.Context, recordID, _ string, _ string) error {
	return n.record("reply_failed:" + recordID)
}

func (n *RecordingNotifier) NotifyError(_ context.Context, err error, label string) error {
	return n.record(fmt.Sprintf("error:%s:%v", label, err))
}

func (n *RecordingNotifier) TestNotification(context.Context) error {
	return n.record("test")
}
