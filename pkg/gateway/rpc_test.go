package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/keygate-hq/keygate-signer/pkg/amount"
	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejectedError struct{ msg string }

func (e rejectedError) Error() string  { return e.msg }
func (e rejectedError) ErrorCode() int { return CodeTransferRejected }

// walletService emulates the bridge's wallet namespace
type walletService struct {
	mu        sync.Mutex
	threshold uint64
	nextID    uint64
	proposed  []ProposeTransactionArgs
	executed  []ExecuteTransactionArgs
	result    ExecutionResult
	execErr   error
}

func (s *walletService) ProposeTransaction(args ProposeTransactionArgs) (ProposedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.proposed = append(s.proposed, args)
	return ProposedTransaction{
		ID:      s.nextID,
		To:      args.To,
		Token:   args.Token,
		Network: args.Network,
		Amount:  args.Amount,
	}, nil
}

func (s *walletService) GetThreshold(account string) (uint64, error) {
	if account == "" {
		return 0, errors.New("account required")
	}
	return s.threshold, nil
}

func (s *walletService) ExecuteTransaction(args ExecuteTransactionArgs) (ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, args)
	if s.execErr != nil {
		return ExecutionResult{}, s.execErr
	}
	return s.result, nil
}

func newTestGateway(t *testing.T, svc *walletService) *RPCGateway {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("wallet", svc))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return New(client, "wallet-1", nil)
}

func testIntent() models.TransactionIntent {
	return models.TransactionIntent{
		ID:        7,
		Recipient: "bob",
		Asset:     models.NativeICP,
		Network:   models.NetworkICP,
		Kind:      models.KindTransfer,
		Amount:    amount.Amount(150_000_000),
		Approvals: models.NewSignerSet("alice", "carol"),
	}
}

func TestRPCGatewayProposeRemote(t *testing.T) {
	svc := &walletService{threshold: 2}
	gw := newTestGateway(t, svc)

	receipt, err := gw.ProposeRemote(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.RemoteID)

	require.Len(t, svc.proposed, 1)
	assert.Equal(t, ProposeTransactionArgs{
		Wallet:          "wallet-1",
		To:              "bob",
		Token:           "icp:native",
		TransactionType: "Transfer",
		Network:         "ICP",
		Amount:          150_000_000,
	}, svc.proposed[0])
}

func TestRPCGatewayFetchThreshold(t *testing.T) {
	gw := newTestGateway(t, &walletService{threshold: 3})

	threshold, err := gw.FetchThreshold(context.Background(), "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), threshold)

	// Empty account falls back to the configured wallet
	threshold, err = gw.FetchThreshold(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), threshold)
}

func TestRPCGatewaySubmit(t *testing.T) {
	tests := []struct {
		name     string
		result   ExecutionResult
		expected engine.OutcomeKind
	}{
		{"completed", ExecutionResult{Status: RemoteCompleted, Detail: "block 12"}, engine.OutcomeCompleted},
		{"failed", ExecutionResult{Status: RemoteFailed, Detail: "insufficient funds"}, engine.OutcomeFailed},
		{"rejected", ExecutionResult{Status: RemoteRejected}, engine.OutcomeFailed},
		{"pending", ExecutionResult{Status: RemotePending}, engine.OutcomeStillPending},
		{"in progress", ExecutionResult{Status: RemoteInProgress}, engine.OutcomeStillPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, &walletService{result: tt.result})

			outcome, err := gw.Submit(context.Background(), testIntent())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, outcome.Kind)
			assert.Equal(t, tt.result.Detail, outcome.Detail)
		})
	}
}

func TestRPCGatewaySubmitAddressesRemoteID(t *testing.T) {
	svc := &walletService{result: ExecutionResult{Status: RemoteCompleted}}
	gw := newTestGateway(t, svc)

	intent := testIntent()
	intent.RemoteID = 42
	_, err := gw.Submit(context.Background(), intent)
	require.NoError(t, err)

	require.Len(t, svc.executed, 1)
	assert.Equal(t, uint64(42), svc.executed[0].ID)
	assert.Equal(t, 2, svc.executed[0].Approved)
	assert.Equal(t, uint64(150_000_000), svc.executed[0].Amount)
}

func TestRPCGatewaySubmitErrors(t *testing.T) {
	t.Run("definitive rejection maps to failed", func(t *testing.T) {
		gw := newTestGateway(t, &walletService{execErr: rejectedError{msg: "ledger refused transfer"}})

		outcome, err := gw.Submit(context.Background(), testIntent())
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeFailed, outcome.Kind)
		assert.Contains(t, outcome.Detail, "ledger refused transfer")
	})

	t.Run("other errors are returned", func(t *testing.T) {
		gw := newTestGateway(t, &walletService{execErr: errors.New("replica unreachable")})

		_, err := gw.Submit(context.Background(), testIntent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replica unreachable")
	})

	t.Run("unknown status is an error", func(t *testing.T) {
		gw := newTestGateway(t, &walletService{result: ExecutionResult{Status: "Exploded"}})

		_, err := gw.Submit(context.Background(), testIntent())
		require.Error(t, err)
	})
}

func TestUnimplemented(t *testing.T) {
	var gw engine.Gateway = Unimplemented{}

	_, err := gw.ProposeRemote(context.Background(), testIntent())
	assert.ErrorIs(t, err, models.ErrNotImplemented)

	_, err = gw.FetchThreshold(context.Background(), "wallet-1")
	assert.ErrorIs(t, err, models.ErrNotImplemented)

	_, err = gw.Submit(context.Background(), testIntent())
	assert.ErrorIs(t, err, models.ErrNotImplemented)
}
