// Package events carries intent lifecycle notifications from the engine to
// subscribers such as metrics and the retry manager.
package events

import (
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

const (
	TypeIntentProposed = "intent.proposed"
	TypeVoteRecorded   = "intent.vote"
	TypeStatusChanged  = "intent.status"
)

// Event represents a structured lifecycle change
type Event interface {
	EventType() string
}

// Emitter broadcasts events to subscribers
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi fans an event out to every emitter in order
type Multi []Emitter

func (m Multi) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}

type IntentProposed struct {
	Intent models.TransactionIntent
}

func (IntentProposed) EventType() string { return TypeIntentProposed }

type VoteRecorded struct {
	IntentID uint64
	Signer   models.Signer
	Approve  bool
}

func (VoteRecorded) EventType() string { return TypeVoteRecorded }

// StatusChanged is emitted for every state transition, including the
// InProgress -> Pending re-queue.
type StatusChanged struct {
	IntentID uint64
	From     models.State
	To       models.Status
	// Err is the submission error behind a re-queue, nil otherwise
	Err error
}

func (StatusChanged) EventType() string { return TypeStatusChanged }

// Requeued reports whether the transition returned an in-flight intent to pending
func (e StatusChanged) Requeued() bool {
	return e.From == models.StateInProgress && e.To.State == models.StatePending
}
