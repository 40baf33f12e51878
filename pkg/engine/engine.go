// Package engine drives transaction intents from proposal through signer
// approval to a single execution attempt against the Execution Gateway.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/amount"
	"github.com/keygate-hq/keygate-signer/pkg/circuitbreaker"
	"github.com/keygate-hq/keygate-signer/pkg/events"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/metrics"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/keygate-hq/keygate-signer/pkg/quorum"
	"github.com/keygate-hq/keygate-signer/pkg/store"
)

// Config holds the per-account knobs of the engine
type Config struct {
	// Account is the wallet whose threshold governs execution
	Account string
	// SignerUniverse is the number of signers of the account, 0 if unknown
	SignerUniverse uint64
	// SubmitTimeout bounds a single gateway submission, 0 disables it
	SubmitTimeout time.Duration
	// RegisterRemote registers proposals with the remote account before storing them
	RegisterRemote bool
	// DefaultAsset and DefaultNetwork fill in proposals that omit them
	DefaultAsset   string
	DefaultNetwork models.Network
}

// ProposeRequest describes a new transfer. Amount is in minor units and
// signed so that negative inputs are rejected rather than wrapped.
type ProposeRequest struct {
	Recipient string
	Asset     string
	Network   models.Network
	Kind      models.Kind
	Amount    int64
}

// Engine orchestrates legal status transitions of intents
type Engine struct {
	store   *store.Store
	gateway Gateway
	breaker *circuitbreaker.CircuitBreaker
	emitter events.Emitter
	cfg     Config
	logger  logger.Logger
}

// New constructs an engine over the store and gateway
func New(st *store.Store, gw Gateway, cfg Config, log logger.Logger) *Engine {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Engine{
		store:   st,
		gateway: gw,
		emitter: events.NoopEmitter{},
		cfg:     cfg,
		logger:  log,
	}
}

// SetEmitter configures the lifecycle event emitter. Passing nil resets it
// to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetCircuitBreaker guards gateway calls with cb
func (e *Engine) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	e.breaker = cb
}

// Store returns the intent store backing the engine
func (e *Engine) Store() *store.Store {
	return e.store
}

// Propose validates and records a new pending intent
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (models.TransactionIntent, error) {
	a, err := amount.FromMinor(req.Amount)
	if err != nil {
		return models.TransactionIntent{}, fmt.Errorf("%w: %w", models.ErrInvalidAmount, err)
	}

	draft := store.Draft{
		Recipient: req.Recipient,
		Asset:     req.Asset,
		Network:   req.Network,
		Kind:      req.Kind,
		Amount:    a,
	}
	if draft.Asset == "" {
		draft.Asset = orDefault(e.cfg.DefaultAsset, models.NativeICP)
	}
	if draft.Network == "" {
		draft.Network = models.Network(orDefault(string(e.cfg.DefaultNetwork), string(models.NetworkICP)))
	}
	if draft.Kind == "" {
		draft.Kind = models.KindTransfer
	}
	if err := draft.Validate(); err != nil {
		return models.TransactionIntent{}, err
	}

	if e.cfg.RegisterRemote {
		receipt, err := e.gateway.ProposeRemote(ctx, models.TransactionIntent{
			Recipient: strings.TrimSpace(draft.Recipient),
			Asset:     draft.Asset,
			Network:   draft.Network,
			Kind:      draft.Kind,
			Amount:    draft.Amount,
		})
		if err != nil {
			return models.TransactionIntent{}, fmt.Errorf("failed to register intent with account %s: %w", e.cfg.Account, err)
		}
		draft.RemoteID = receipt.RemoteID
	}

	intent, err := e.store.Propose(draft)
	if err != nil {
		return models.TransactionIntent{}, err
	}

	e.logger.InfoWithIntent(intent.ID, "Proposed %s of %s %s to %s", intent.Kind, intent.Amount, intent.Asset, intent.Recipient)
	e.emitter.Emit(events.IntentProposed{Intent: intent.Clone()})
	return intent, nil
}

// Get returns the intent with the given id
func (e *Engine) Get(id uint64) (models.TransactionIntent, error) {
	return e.store.Get(id)
}

// RecordVote records the signer's approval or rejection. When the size of
// the signer set is known, a rejection that makes the threshold unreachable
// moves the intent to Rejected.
func (e *Engine) RecordVote(ctx context.Context, id uint64, signer models.Signer, approve bool) (models.TransactionIntent, error) {
	intent, err := e.store.RecordVote(id, signer, approve)
	if err != nil {
		return intent, err
	}

	e.logger.DebugWithIntent(id, "Recorded %s vote from %s (%d approvals, %d rejections)",
		voteName(approve), signer, len(intent.Approvals), len(intent.Rejections))
	e.emitter.Emit(events.VoteRecorded{IntentID: id, Signer: signer, Approve: approve})

	if approve || e.cfg.SignerUniverse == quorum.UnknownUniverse || intent.Status.State != models.StatePending {
		return intent, nil
	}

	threshold, err := e.fetchThreshold(ctx)
	if err != nil {
		// The vote is committed; rejection is re-evaluated on the next execute
		e.logger.ErrorWithIntent(id, "Could not evaluate rejection: %v", err)
		return intent, nil
	}

	updated, err := e.store.Transition(id, func(cur models.TransactionIntent) (models.Status, error) {
		if cur.Status.State != models.StatePending {
			return cur.Status, nil
		}
		if e.decide(cur, threshold) == quorum.Rejected {
			return rejectedStatus(cur, threshold, e.cfg.SignerUniverse), nil
		}
		return cur.Status, nil
	})
	if err != nil {
		return updated, err
	}
	e.noteTransition(intent.Status.State, updated, nil)
	return updated, nil
}

// Cancel explicitly rejects a pending intent, e.g. an authorized cancel by
// the account owner. It is independent of quorum evaluation.
func (e *Engine) Cancel(id uint64, reason string) (models.Status, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled"
	}

	var from models.State
	updated, err := e.store.Transition(id, func(cur models.TransactionIntent) (models.Status, error) {
		from = cur.Status.State
		if err := checkExecutable(cur); err != nil {
			return cur.Status, err
		}
		return models.Status{State: models.StateRejected, Detail: reason}, nil
	})
	if err != nil {
		return updated.Status, err
	}

	e.logger.NoticeWithIntent(id, "Cancelled: %s", reason)
	e.noteTransition(from, updated, nil)
	return updated.Status, nil
}

// Execute re-evaluates the quorum with the account's current threshold and,
// if approved, submits the intent to the gateway exactly once. A terminal
// intent returns its stored status together with ErrAlreadyTerminal.
func (e *Engine) Execute(ctx context.Context, id uint64) (models.Status, error) {
	cur, err := e.store.Get(id)
	if err != nil {
		return models.Status{}, err
	}
	if err := checkExecutable(cur); err != nil {
		e.countExecution(err)
		return cur.Status, err
	}

	if e.breaker != nil && e.breaker.IsOpen() {
		e.countExecution(models.ErrGatewayUnavailable)
		return cur.Status, fmt.Errorf("%w: circuit breaker open", models.ErrGatewayUnavailable)
	}

	threshold, err := e.fetchThreshold(ctx)
	if err != nil {
		e.countExecution(err)
		return cur.Status, err
	}

	// Decision and snapshot are taken under the intent lock; votes recorded
	// after this point do not affect the in-flight submission.
	var snapshot models.TransactionIntent
	started, err := e.store.Transition(id, func(cur models.TransactionIntent) (models.Status, error) {
		if err := checkExecutable(cur); err != nil {
			return cur.Status, err
		}
		switch e.decide(cur, threshold) {
		case quorum.Approved:
			snapshot = cur
			return models.Status{
				State:  models.StateInProgress,
				Detail: fmt.Sprintf("submitting with %d of %d approvals", len(cur.Approvals), threshold),
			}, nil
		case quorum.Rejected:
			return rejectedStatus(cur, threshold, e.cfg.SignerUniverse), nil
		default:
			return cur.Status, fmt.Errorf("%w: %d of %d approvals", models.ErrQuorumNotMet, len(cur.Approvals), threshold)
		}
	})
	if err != nil {
		e.countExecution(err)
		return started.Status, err
	}
	e.noteTransition(models.StatePending, started, nil)

	if started.Status.State == models.StateRejected {
		e.countExecution(nil)
		return started.Status, nil
	}

	next, submitErr := e.submit(ctx, snapshot)

	final, err := e.recordOutcome(id, next)
	if err != nil {
		// Left in progress; replaying the journal on restart returns it to pending
		e.logger.ErrorWithIntent(id, "Failed to record execution outcome %s: %v", next, err)
		return final.Status, err
	}
	e.noteTransition(models.StateInProgress, final, submitErr)
	e.countExecution(submitErr)

	return final.Status, submitErr
}

// recordOutcome commits the status an execution attempt ends with. A failed
// journal write is tried once more, since the intent stays InProgress until
// the outcome is committed.
func (e *Engine) recordOutcome(id uint64, next models.Status) (models.TransactionIntent, error) {
	commit := func(models.TransactionIntent) (models.Status, error) { return next, nil }

	final, err := e.store.Transition(id, commit)
	if err == nil || errors.Is(err, models.ErrAlreadyTerminal) {
		return final, err
	}
	e.logger.ErrorWithIntent(id, "Recording outcome %s failed, trying again: %v", next, err)
	return e.store.Transition(id, commit)
}

// submit performs the single gateway call and maps its outcome onto the
// status the intent leaves InProgress with.
func (e *Engine) submit(ctx context.Context, intent models.TransactionIntent) (models.Status, error) {
	if e.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SubmitTimeout)
		defer cancel()
	}

	e.logger.InfoWithIntent(intent.ID, "Submitting transfer of %s %s to %s", intent.Amount, intent.Asset, intent.Recipient)
	start := time.Now()
	outcome, err := e.gateway.Submit(ctx, intent)
	metrics.SubmitDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, models.ErrNotImplemented) {
		e.logger.ErrorWithIntent(intent.ID, "Gateway cannot submit, returning to pending: %v", err)
		return models.Status{State: models.StatePending, Detail: "gateway does not support submission"},
			fmt.Errorf("submit intent %d: %w", intent.ID, err)
	}
	if err != nil {
		e.recordGatewayFailure()
		detail := fmt.Sprintf("submission not confirmed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			detail = "submission timed out, awaiting remote finalization"
		}
		e.logger.ErrorWithIntent(intent.ID, "Submission error, returning to pending: %v", err)
		return models.Status{State: models.StatePending, Detail: detail},
			fmt.Errorf("%w: submit intent %d: %w", models.ErrGatewayUnavailable, intent.ID, err)
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}

	switch outcome.Kind {
	case OutcomeCompleted:
		e.logger.NoticeWithIntent(intent.ID, "Transfer completed: %s", outcome.Detail)
		return models.Status{State: models.StateCompleted, Detail: orDefault(outcome.Detail, "transfer executed")}, nil
	case OutcomeFailed:
		e.logger.ErrorWithIntent(intent.ID, "Transfer failed: %s", outcome.Detail)
		return models.Status{State: models.StateFailed, Detail: orDefault(outcome.Detail, "transfer rejected by ledger")}, nil
	default:
		e.logger.InfoWithIntent(intent.ID, "Transfer still pending remotely: %s", outcome.Detail)
		return models.Status{State: models.StatePending, Detail: orDefault(outcome.Detail, "awaiting remote finalization")}, nil
	}
}

func (e *Engine) fetchThreshold(ctx context.Context) (uint64, error) {
	threshold, err := e.gateway.FetchThreshold(ctx, e.cfg.Account)
	if errors.Is(err, models.ErrNotImplemented) {
		return 0, fmt.Errorf("fetch threshold for %s: %w", e.cfg.Account, err)
	}
	if err != nil {
		e.recordGatewayFailure()
		return 0, fmt.Errorf("%w: fetch threshold for %s: %w", models.ErrGatewayUnavailable, e.cfg.Account, err)
	}
	if threshold == 0 {
		threshold = 1
	}
	return threshold, nil
}

func (e *Engine) decide(intent models.TransactionIntent, threshold uint64) quorum.Decision {
	return quorum.Evaluate(uint64(len(intent.Approvals)), uint64(len(intent.Rejections)), threshold, e.cfg.SignerUniverse)
}

func (e *Engine) recordGatewayFailure() {
	if e.breaker != nil {
		e.breaker.RecordFailure()
	}
}

// noteTransition emits a status change event when the state actually moved
func (e *Engine) noteTransition(from models.State, after models.TransactionIntent, cause error) {
	if from == after.Status.State {
		return
	}
	e.logger.DebugWithIntent(after.ID, "Status %s -> %s", from, after.Status)
	e.emitter.Emit(events.StatusChanged{IntentID: after.ID, From: from, To: after.Status, Err: cause})
}

func (e *Engine) countExecution(err error) {
	metrics.Executions.WithLabelValues(executionResult(err)).Inc()
}

func executionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrQuorumNotMet):
		return "quorum_not_met"
	case errors.Is(err, models.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, models.ErrAlreadyInProgress):
		return "already_in_progress"
	case errors.Is(err, models.ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, models.ErrGatewayUnavailable):
		return "gateway_unavailable"
	default:
		return "error"
	}
}

func checkExecutable(intent models.TransactionIntent) error {
	if intent.Terminal() {
		return fmt.Errorf("%w: intent %d is %s", models.ErrAlreadyTerminal, intent.ID, intent.Status)
	}
	if intent.Status.State == models.StateInProgress {
		return fmt.Errorf("%w: intent %d", models.ErrAlreadyInProgress, intent.ID)
	}
	return nil
}

func rejectedStatus(intent models.TransactionIntent, threshold, universe uint64) models.Status {
	return models.Status{
		State: models.StateRejected,
		Detail: fmt.Sprintf("threshold of %d unreachable: %d of %d signers rejected",
			threshold, len(intent.Rejections), universe),
	}
}

func voteName(approve bool) string {
	if approve {
		return "approve"
	}
	return "reject"
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
