package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/events"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/metrics"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

const (
	// DefaultMaxBackoff caps the delay between two attempts on the same intent
	DefaultMaxBackoff = 2 * time.Minute

	maxQueueSize      = 1000
	maxProcessPerTick = 10
)

// Executor runs one execution attempt of an intent
type Executor interface {
	Execute(ctx context.Context, id uint64) (models.Status, error)
}

// RetryConfig controls the retry manager
type RetryConfig struct {
	Enabled    bool
	MaxRetries int
	// Interval is the base backoff, doubled on each attempt
	Interval   time.Duration
	MaxBackoff time.Duration
	// Tick is how often the queue is checked, defaults to Interval
	Tick time.Duration
}

// RetryManager re-executes intents that an execution attempt returned to
// pending. It subscribes to lifecycle events and owns the retry queue.
type RetryManager struct {
	executor  Executor
	cfg       RetryConfig
	retryJobs chan models.RetryJob
	now       func() time.Time
	logger    logger.Logger

	mu        sync.Mutex
	attempts  map[uint64]int
	scheduled map[uint64]bool
}

var _ events.Emitter = (*RetryManager)(nil)

// NewRetryManager creates a new retry manager
func NewRetryManager(executor Executor, cfg RetryConfig, log logger.Logger) *RetryManager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Tick <= 0 {
		cfg.Tick = cfg.Interval
	}
	return &RetryManager{
		executor:  executor,
		cfg:       cfg,
		retryJobs: make(chan models.RetryJob, 100), // Buffer for retry jobs
		now:       time.Now,
		logger:    log,
		attempts:  make(map[uint64]int),
		scheduled: make(map[uint64]bool),
	}
}

// Emit schedules a retry for every re-queued intent and forgets intents
// that reached a terminal state.
func (rm *RetryManager) Emit(evt events.Event) {
	change, ok := evt.(events.StatusChanged)
	if !ok {
		return
	}
	if change.To.State.Terminal() {
		rm.forget(change.IntentID)
		return
	}
	if !change.Requeued() {
		return
	}
	if change.Err != nil {
		if retry, reason := ShouldRetryError(change.Err); !retry {
			rm.logger.NoticeWithIntent(change.IntentID, "Not retrying re-queued intent: %v", change.Err)
			metrics.RetriesSkipped.WithLabelValues(reason).Inc()
			return
		}
	}
	rm.ScheduleRetry(change.IntentID, change.To.Detail)
}

// CalculateBackoff calculates the backoff duration for retry attempts
func (rm *RetryManager) CalculateBackoff(retryCount int) time.Duration {
	// Exponential backoff: 2^retry * interval
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * rm.cfg.Interval

	if backoff > rm.cfg.MaxBackoff || backoff <= 0 {
		backoff = rm.cfg.MaxBackoff
	}
	return backoff
}

// ScheduleRetry queues another execution attempt of the intent. It never
// blocks: when the queue is full the retry is dropped.
func (rm *RetryManager) ScheduleRetry(id uint64, reason string) {
	if !rm.cfg.Enabled {
		return
	}

	rm.mu.Lock()
	if rm.scheduled[id] {
		rm.mu.Unlock()
		return
	}
	retryCount := rm.attempts[id]
	if retryCount >= rm.cfg.MaxRetries {
		delete(rm.attempts, id)
		rm.mu.Unlock()
		rm.logger.NoticeWithIntent(id, "Max retries reached, giving up (last: %s)", reason)
		metrics.MaxRetriesReached.Inc()
		return
	}
	rm.attempts[id] = retryCount + 1
	rm.scheduled[id] = true
	rm.mu.Unlock()

	backoff := rm.CalculateBackoff(retryCount)
	job := models.RetryJob{
		IntentID:    id,
		RetryCount:  retryCount + 1,
		NextAttempt: rm.now().Add(backoff),
		Reason:      reason,
	}

	select {
	case rm.retryJobs <- job:
		metrics.RetryCount.WithLabelValues(retryReason(reason)).Inc()
		rm.logger.InfoWithIntent(id, "Scheduling retry %d in %v (%s)", job.RetryCount, backoff, reason)
	default:
		rm.mu.Lock()
		delete(rm.scheduled, id)
		rm.mu.Unlock()
		metrics.RetriesSkipped.WithLabelValues("queue_full").Inc()
		rm.logger.ErrorWithIntent(id, "Retry channel full, dropping retry")
	}
}

// Pending returns how many retries are scheduled and not yet attempted
func (rm *RetryManager) Pending() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.scheduled)
}

// StartRetryHandler starts the retry handler goroutine
func (rm *RetryManager) StartRetryHandler(ctx context.Context, wg *sync.WaitGroup) {
	if !rm.cfg.Enabled {
		rm.logger.Info("Retries disabled")
		return
	}
	rm.logger.Info("Starting retry handler (max %d retries, base interval %v)", rm.cfg.MaxRetries, rm.cfg.Interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rm.retryHandler(ctx)
	}()
}

// retryHandler processes retry jobs
func (rm *RetryManager) retryHandler(ctx context.Context) {
	ticker := time.NewTicker(rm.cfg.Tick)
	defer ticker.Stop()

	var retryQueue []models.RetryJob

	for {
		select {
		case <-ctx.Done():
			rm.logger.Info("Retry handler shutting down with %d queued jobs", len(retryQueue))
			return
		case job := <-rm.retryJobs:
			if len(retryQueue) >= maxQueueSize {
				rm.logger.ErrorWithIntent(job.IntentID, "Retry queue at capacity (%d jobs), dropping retry", maxQueueSize)
				rm.unschedule(job.IntentID)
				metrics.RetriesSkipped.WithLabelValues("queue_full").Inc()
				continue
			}
			retryQueue = append(retryQueue, job)

			// Sort the queue by next attempt time
			sort.Slice(retryQueue, func(i, j int) bool {
				return retryQueue[i].NextAttempt.Before(retryQueue[j].NextAttempt)
			})
		case <-ticker.C:
			retryQueue = rm.processRetryJobs(ctx, retryQueue)
		}
	}
}

// processRetryJobs runs the jobs that are due and returns the rest
func (rm *RetryManager) processRetryJobs(ctx context.Context, queue []models.RetryJob) []models.RetryJob {
	now := rm.now()

	metrics.RetryQueueSize.Set(float64(len(queue)))
	if len(queue) > 0 {
		nextRetryIn := queue[0].NextAttempt.Sub(now).Seconds()
		if nextRetryIn < 0 {
			nextRetryIn = 0
		}
		metrics.NextRetryIn.Set(nextRetryIn)
	}

	processed := 0
	var remaining []models.RetryJob
	for _, job := range queue {
		if processed >= maxProcessPerTick || job.NextAttempt.After(now) {
			remaining = append(remaining, job)
			continue
		}
		processed++
		rm.retry(ctx, job)
	}
	return remaining
}

func (rm *RetryManager) retry(ctx context.Context, job models.RetryJob) {
	rm.unschedule(job.IntentID)
	rm.logger.DebugWithIntent(job.IntentID, "Retry attempt %d", job.RetryCount)

	status, err := rm.executor.Execute(ctx, job.IntentID)
	if err == nil {
		rm.logger.InfoWithIntent(job.IntentID, "Retry attempt %d finished as %s", job.RetryCount, status)
		return
	}

	shouldRetry, reason := ShouldRetryError(err)
	if !shouldRetry {
		rm.logger.InfoWithIntent(job.IntentID, "Not retrying: %v", err)
		metrics.RetriesSkipped.WithLabelValues(reason).Inc()
		rm.forget(job.IntentID)
		return
	}

	// Failures before submission leave no re-queue event behind
	rm.logger.ErrorWithIntent(job.IntentID, "Retry attempt %d failed: %v", job.RetryCount, err)
	rm.ScheduleRetry(job.IntentID, reason)
}

func (rm *RetryManager) unschedule(id uint64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.scheduled, id)
}

func (rm *RetryManager) forget(id uint64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.attempts, id)
}

// ShouldRetryError classifies errors to determine if a retry should be attempted
// Returns (shouldRetry, errorType)
func ShouldRetryError(err error) (bool, string) {
	switch {
	case errors.Is(err, models.ErrAlreadyTerminal):
		return false, "already_terminal"
	case errors.Is(err, models.ErrAlreadyInProgress):
		// The running attempt re-queues the intent itself if needed
		return false, "already_in_progress"
	case errors.Is(err, models.ErrQuorumNotMet):
		return false, "quorum_not_met"
	case errors.Is(err, models.ErrNotFound):
		return false, "not_found"
	case errors.Is(err, models.ErrNotImplemented):
		return false, "not_implemented"
	case errors.Is(err, models.ErrGatewayUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return true, "gateway_unavailable"
	}
	return true, "unknown_error"
}

func retryReason(detail string) string {
	switch detail {
	case "gateway_unavailable", "unknown_error":
		return detail
	}
	return "requeued"
}
