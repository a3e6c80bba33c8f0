package platform

import "time"

// Watermark records how far a task has read. It only moves forward.
type Watermark struct {
	At     time.Time
	Cursor string
}

// IsZero reports whether nothing has been read yet.
func (w Watermark) IsZero() bool {
	return w.At.IsZero() && w.Cursor == ""
}

// Advance returns the watermark after consuming batch. The timestamp moves to
// the newest item seen and never backwards; an empty batch cursor keeps the
// previous cursor.
func (w Watermark) Advance(batch Batch) Watermark {
	next := w
	for _, item := range batch.Items {
		if item.Timestamp.After(next.At) {
			next.At = item.Timestamp.UTC()
		}
	}
	if batch.Cursor != "" {
		next.Cursor = batch.Cursor
	}
	return next
}
