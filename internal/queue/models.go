package queue

import "github.com/google/uuid"

// Message is what a pull hands back to the caller.
type Message struct {
	Body      string
	ReceiptID string
}

// Record is the durable unit of queue state, one per line in the file log.
type Record struct {
	Attempts    int
	VisibleFrom int64 // epoch millis
	ReceiptID   string
	Priority    int
	Body        string
}

// VisibleAt reports whether the record may be returned by a pull at now (epoch millis).
func (r Record) VisibleAt(now int64) bool {
	return now >= r.VisibleFrom
}

// NewReceiptID returns a fresh opaque acknowledgement token.
func NewReceiptID() string {
	return uuid.NewString()
}
