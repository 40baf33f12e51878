package models

import (
	"time"
)

// RetryJob represents a scheduled re-execution of a re-queued intent
type RetryJob struct {
	IntentID    uint64
	RetryCount  int
	NextAttempt time.Time
	Reason      string // Detail of the outcome that re-queued the intent
}
