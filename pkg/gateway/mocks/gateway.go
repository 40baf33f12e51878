package mocks

import (
	"context"
	"sync"

	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/gateway"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// Gateway is an in-memory engine.Gateway. Unset hooks fall back to fixed
// answers, except ProposeRemote which reports ErrNotImplemented.
type Gateway struct {
	gateway.Unimplemented

	ProposeFunc   func(ctx context.Context, intent models.TransactionIntent) (engine.RemoteReceipt, error)
	ThresholdFunc func(ctx context.Context, account string) (uint64, error)
	SubmitFunc    func(ctx context.Context, intent models.TransactionIntent) (engine.Outcome, error)

	mu        sync.Mutex
	threshold uint64
	outcome   engine.Outcome
	submitted []models.TransactionIntent
	proposed  uint64
}

var _ engine.Gateway = (*Gateway)(nil)

// NewGateway returns a gateway with the given threshold that completes every submission
func NewGateway(threshold uint64) *Gateway {
	return &Gateway{
		threshold: threshold,
		outcome:   engine.Outcome{Kind: engine.OutcomeCompleted, Detail: "executed"},
	}
}

// SetThreshold changes the threshold reported by FetchThreshold
func (g *Gateway) SetThreshold(threshold uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = threshold
}

// SetOutcome changes the outcome returned by Submit
func (g *Gateway) SetOutcome(outcome engine.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcome = outcome
}

func (g *Gateway) ProposeRemote(ctx context.Context, intent models.TransactionIntent) (engine.RemoteReceipt, error) {
	if g.ProposeFunc != nil {
		receipt, err := g.ProposeFunc(ctx, intent)
		if err == nil {
			g.mu.Lock()
			g.proposed++
			g.mu.Unlock()
		}
		return receipt, err
	}
	return g.Unimplemented.ProposeRemote(ctx, intent)
}

func (g *Gateway) FetchThreshold(ctx context.Context, account string) (uint64, error) {
	if g.ThresholdFunc != nil {
		return g.ThresholdFunc(ctx, account)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.threshold, nil
}

func (g *Gateway) Submit(ctx context.Context, intent models.TransactionIntent) (engine.Outcome, error) {
	g.mu.Lock()
	g.submitted = append(g.submitted, intent.Clone())
	outcome := g.outcome
	g.mu.Unlock()

	if g.SubmitFunc != nil {
		return g.SubmitFunc(ctx, intent)
	}
	return outcome, nil
}

// Submissions returns how many times Submit was called for id
func (g *Gateway) Submissions(id uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, intent := range g.submitted {
		if intent.ID == id {
			n++
		}
	}
	return n
}

// LastSubmitted returns the snapshot passed to the most recent Submit
func (g *Gateway) LastSubmitted() (models.TransactionIntent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.submitted) == 0 {
		return models.TransactionIntent{}, false
	}
	return g.submitted[len(g.submitted)-1].Clone(), true
}

// Proposed returns how many remote registrations succeeded
func (g *Gateway) Proposed() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.proposed
}
