package gateway

import (
	"context"
	"fmt"

	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// Unimplemented answers every gateway call with ErrNotImplemented. Embed it
// in partial gateways so that missing operations fail recoverably.
type Unimplemented struct{}

var _ engine.Gateway = Unimplemented{}

func (Unimplemented) ProposeRemote(context.Context, models.TransactionIntent) (engine.RemoteReceipt, error) {
	return engine.RemoteReceipt{}, fmt.Errorf("%w: propose remote", models.ErrNotImplemented)
}

func (Unimplemented) FetchThreshold(context.Context, string) (uint64, error) {
	return 0, fmt.Errorf("%w: fetch threshold", models.ErrNotImplemented)
}

func (Unimplemented) Submit(context.Context, models.TransactionIntent) (engine.Outcome, error) {
	return engine.Outcome{}, fmt.Errorf("%w: submit", models.ErrNotImplemented)
}
