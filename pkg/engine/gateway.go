package engine

import (
	"context"

	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// OutcomeKind is the final word of the gateway on a submission
type OutcomeKind int

const (
	// OutcomeStillPending means the remote side has not finalized the transfer yet
	OutcomeStillPending OutcomeKind = iota
	OutcomeCompleted
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "still_pending"
	}
}

// Outcome is the result of a submission
type Outcome struct {
	Kind   OutcomeKind
	Detail string
}

// RemoteReceipt acknowledges registration of an intent with the remote account
type RemoteReceipt struct {
	RemoteID uint64
	Detail   string
}

// Gateway performs the remote side of the intent lifecycle: registering
// proposals with the account, reading its quorum threshold and executing
// approved transfers. Transport, identity and signing live behind it.
type Gateway interface {
	// ProposeRemote registers the transfer with the remote account
	ProposeRemote(ctx context.Context, intent models.TransactionIntent) (RemoteReceipt, error)

	// FetchThreshold returns the current quorum size of the account
	FetchThreshold(ctx context.Context, account string) (uint64, error)

	// Submit attempts final execution of an approved intent. Implementations
	// report asynchronous finalization as OutcomeStillPending, not as an error.
	Submit(ctx context.Context, intent models.TransactionIntent) (Outcome, error)
}
