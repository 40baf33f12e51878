// Package gateway implements the Execution Gateway against a wallet account
// reachable through a JSON-RPC bridge.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

const (
	methodProposeTransaction = "wallet_proposeTransaction"
	methodGetThreshold       = "wallet_getThreshold"
	methodExecuteTransaction = "wallet_executeTransaction"
)

// caller is the subset of *rpc.Client used by the gateway
type caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// RPCGateway talks to the wallet account over JSON-RPC
type RPCGateway struct {
	client caller
	wallet string
	logger logger.Logger
}

var _ engine.Gateway = (*RPCGateway)(nil)

// Dial connects to the bridge at url for the given wallet
func Dial(ctx context.Context, url, wallet string, log logger.Logger) (*RPCGateway, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway %s: %w", url, err)
	}
	return New(client, wallet, log), nil
}

// New wraps an established RPC client
func New(client *rpc.Client, wallet string, log logger.Logger) *RPCGateway {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &RPCGateway{
		client: client,
		wallet: wallet,
		logger: log,
	}
}

// ProposeRemote registers the transfer with the account
func (g *RPCGateway) ProposeRemote(ctx context.Context, intent models.TransactionIntent) (engine.RemoteReceipt, error) {
	args := ProposeTransactionArgs{
		Wallet:          g.wallet,
		To:              intent.Recipient,
		Token:           intent.Asset,
		TransactionType: remoteKind(intent.Kind),
		Network:         strings.ToUpper(string(intent.Network)),
		Amount:          intent.Amount.Minor(),
	}

	var proposed ProposedTransaction
	if err := g.client.CallContext(ctx, &proposed, methodProposeTransaction, args); err != nil {
		return engine.RemoteReceipt{}, fmt.Errorf("failed to propose transaction: %w", err)
	}

	g.logger.Debug("Account %s registered transaction %d", g.wallet, proposed.ID)
	return engine.RemoteReceipt{
		RemoteID: proposed.ID,
		Detail:   fmt.Sprintf("registered as transaction %d", proposed.ID),
	}, nil
}

// FetchThreshold reads the current quorum size of the account
func (g *RPCGateway) FetchThreshold(ctx context.Context, account string) (uint64, error) {
	if account == "" {
		account = g.wallet
	}

	var threshold uint64
	if err := g.client.CallContext(ctx, &threshold, methodGetThreshold, account); err != nil {
		return 0, fmt.Errorf("failed to get threshold: %w", err)
	}
	return threshold, nil
}

// Submit asks the account to execute the transfer
func (g *RPCGateway) Submit(ctx context.Context, intent models.TransactionIntent) (engine.Outcome, error) {
	id := intent.RemoteID
	if id == 0 {
		id = intent.ID
	}
	args := ExecuteTransactionArgs{
		Wallet:   g.wallet,
		ID:       id,
		To:       intent.Recipient,
		Token:    intent.Asset,
		Network:  strings.ToUpper(string(intent.Network)),
		Amount:   intent.Amount.Minor(),
		Approved: len(intent.Approvals),
	}

	var result ExecutionResult
	if err := g.client.CallContext(ctx, &result, methodExecuteTransaction, args); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == CodeTransferRejected {
			return engine.Outcome{Kind: engine.OutcomeFailed, Detail: rpcErr.Error()}, nil
		}
		return engine.Outcome{}, fmt.Errorf("failed to execute transaction %d: %w", id, err)
	}

	return outcomeFromRemote(result)
}

// Close releases the underlying connection
func (g *RPCGateway) Close() {
	g.client.Close()
}

func outcomeFromRemote(result ExecutionResult) (engine.Outcome, error) {
	switch result.Status {
	case RemoteCompleted:
		return engine.Outcome{Kind: engine.OutcomeCompleted, Detail: result.Detail}, nil
	case RemoteFailed, RemoteRejected:
		return engine.Outcome{Kind: engine.OutcomeFailed, Detail: result.Detail}, nil
	case RemotePending, RemoteInProgress:
		return engine.Outcome{Kind: engine.OutcomeStillPending, Detail: result.Detail}, nil
	}
	return engine.Outcome{}, fmt.Errorf("unknown remote status %q", result.Status)
}

func remoteKind(kind models.Kind) string {
	switch kind {
	case models.KindTransfer:
		return "Transfer"
	}
	return string(kind)
}
