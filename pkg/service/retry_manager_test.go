package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/events"
	"github.com/keygate-hq/keygate-signer/pkg/gateway/mocks"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/keygate-hq/keygate-signer/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExecutor) Execute(context.Context, uint64) (models.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return models.Status{State: models.StatePending}, f.err
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		Enabled:    true,
		MaxRetries: maxRetries,
		Interval:   5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		Tick:       2 * time.Millisecond,
	}
}

func startManager(t *testing.T, rm *RetryManager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	rm.StartRetryHandler(ctx, &wg)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestCalculateBackoff(t *testing.T) {
	rm := NewRetryManager(&fakeExecutor{}, RetryConfig{Enabled: true, Interval: 10 * time.Second}, nil)

	assert.Equal(t, 10*time.Second, rm.CalculateBackoff(0))
	assert.Equal(t, 20*time.Second, rm.CalculateBackoff(1))
	assert.Equal(t, 80*time.Second, rm.CalculateBackoff(3))
	assert.Equal(t, DefaultMaxBackoff, rm.CalculateBackoff(4))
	assert.Equal(t, DefaultMaxBackoff, rm.CalculateBackoff(100))
}

func TestShouldRetryError(t *testing.T) {
	tests := []struct {
		err         error
		shouldRetry bool
		reason      string
	}{
		{models.ErrAlreadyTerminal, false, "already_terminal"},
		{models.ErrAlreadyInProgress, false, "already_in_progress"},
		{models.ErrQuorumNotMet, false, "quorum_not_met"},
		{models.ErrNotFound, false, "not_found"},
		{models.ErrGatewayUnavailable, true, "gateway_unavailable"},
		{context.DeadlineExceeded, true, "gateway_unavailable"},
		{assert.AnError, true, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			shouldRetry, reason := ShouldRetryError(tt.err)
			assert.Equal(t, tt.shouldRetry, shouldRetry)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEmitSchedulesOnlyRequeues(t *testing.T) {
	rm := NewRetryManager(&fakeExecutor{}, fastRetryConfig(3), nil)

	rm.Emit(events.VoteRecorded{IntentID: 1, Signer: "alice", Approve: true})
	rm.Emit(events.StatusChanged{IntentID: 1, From: models.StatePending, To: models.Status{State: models.StateInProgress}})
	assert.Equal(t, 0, rm.Pending())

	rm.Emit(events.StatusChanged{IntentID: 1, From: models.StateInProgress, To: models.Status{State: models.StatePending}})
	assert.Equal(t, 1, rm.Pending())

	// A second re-queue of the same intent is not queued twice
	rm.Emit(events.StatusChanged{IntentID: 1, From: models.StateInProgress, To: models.Status{State: models.StatePending}})
	assert.Equal(t, 1, rm.Pending())
}

func TestEmitSkipsRequeuesThatCannotSucceed(t *testing.T) {
	rm := NewRetryManager(&fakeExecutor{}, fastRetryConfig(3), nil)

	requeue := func(id uint64, err error) events.StatusChanged {
		return events.StatusChanged{
			IntentID: id,
			From:     models.StateInProgress,
			To:       models.Status{State: models.StatePending},
			Err:      err,
		}
	}

	rm.Emit(requeue(1, fmt.Errorf("submit intent 1: %w", models.ErrNotImplemented)))
	assert.Equal(t, 0, rm.Pending())

	rm.Emit(requeue(2, fmt.Errorf("%w: submit intent 2: %w", models.ErrGatewayUnavailable, errors.New("reset"))))
	assert.Equal(t, 1, rm.Pending())
}

func TestDisabledManagerSchedulesNothing(t *testing.T) {
	cfg := fastRetryConfig(3)
	cfg.Enabled = false
	rm := NewRetryManager(&fakeExecutor{}, cfg, nil)

	rm.ScheduleRetry(1, "requeued")
	assert.Equal(t, 0, rm.Pending())
}

func TestRetryUntilCompleted(t *testing.T) {
	gw := mocks.NewGateway(1)
	gw.SetOutcome(engine.Outcome{Kind: engine.OutcomeStillPending})
	eng := engine.New(store.New(nil), gw, engine.Config{Account: "wallet-1"}, nil)
	rm := NewRetryManager(eng, fastRetryConfig(5), nil)
	eng.SetEmitter(rm)
	startManager(t, rm)

	ctx := context.Background()
	intent, err := eng.Propose(ctx, engine.ProposeRequest{Recipient: "bob", Amount: 10})
	require.NoError(t, err)
	_, err = eng.RecordVote(ctx, intent.ID, "alice", true)
	require.NoError(t, err)

	status, err := eng.Execute(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, status.State)

	gw.SetOutcome(engine.Outcome{Kind: engine.OutcomeCompleted})
	require.Eventually(t, func() bool {
		got, err := eng.Get(intent.ID)
		return err == nil && got.Status.State == models.StateCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, gw.Submissions(intent.ID))
}

func TestRetryStopsAtMaxRetries(t *testing.T) {
	gw := mocks.NewGateway(1)
	gw.SetOutcome(engine.Outcome{Kind: engine.OutcomeStillPending})
	eng := engine.New(store.New(nil), gw, engine.Config{Account: "wallet-1"}, nil)
	rm := NewRetryManager(eng, fastRetryConfig(2), nil)
	eng.SetEmitter(rm)
	startManager(t, rm)

	ctx := context.Background()
	intent, err := eng.Propose(ctx, engine.ProposeRequest{Recipient: "bob", Amount: 10})
	require.NoError(t, err)
	_, err = eng.RecordVote(ctx, intent.ID, "alice", true)
	require.NoError(t, err)
	_, err = eng.Execute(ctx, intent.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return gw.Submissions(intent.ID) == 3
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, gw.Submissions(intent.ID))
	assert.Equal(t, 0, rm.Pending())

	got, err := eng.Get(intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.Status.State)
}

func TestRetryDropsPermanentErrors(t *testing.T) {
	exec := &fakeExecutor{err: models.ErrQuorumNotMet}
	rm := NewRetryManager(exec, fastRetryConfig(5), nil)
	startManager(t, rm)

	rm.ScheduleRetry(1, "requeued")
	require.Eventually(t, func() bool { return exec.Calls() == 1 }, time.Second, 2*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, exec.Calls())
	assert.Equal(t, 0, rm.Pending())
}

func TestRetryReschedulesGatewayErrors(t *testing.T) {
	exec := &fakeExecutor{err: models.ErrGatewayUnavailable}
	rm := NewRetryManager(exec, fastRetryConfig(3), nil)
	startManager(t, rm)

	rm.ScheduleRetry(1, "requeued")
	require.Eventually(t, func() bool { return exec.Calls() == 3 }, 2*time.Second, 2*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, exec.Calls())
}
