// Package service wires the intent engine to its journal, gateway, retry
// manager and HTTP surface, and runs them until shutdown.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/circuitbreaker"
	"github.com/keygate-hq/keygate-signer/pkg/config"
	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/events"
	"github.com/keygate-hq/keygate-signer/pkg/health"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/metrics"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/keygate-hq/keygate-signer/pkg/store"
)

// Service runs the signer daemon
type Service struct {
	config  *config.Config
	store   *store.Store
	engine  *engine.Engine
	gateway engine.Gateway
	breaker *circuitbreaker.CircuitBreaker
	retries *RetryManager
	health  *health.Server
	logger  logger.Logger
	wg      sync.WaitGroup
}

// NewService opens the journal, replays it and assembles the engine
func NewService(cfg *config.Config, gw engine.Gateway, log logger.Logger) (*Service, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	journal, err := openJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(journal)
	if err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}
	counts := st.CountByState()
	metrics.SetStateCounts(counts)
	log.Info("Loaded %d intents from journal (%d pending)", st.Len(), counts[models.StatePending])

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		log,
	)

	eng := engine.New(st, gw, engine.Config{
		Account:        cfg.WalletID,
		SignerUniverse: cfg.SignerCount,
		SubmitTimeout:  cfg.SubmitTimeout,
		RegisterRemote: cfg.RegisterRemote,
		DefaultAsset:   cfg.DefaultAsset,
		DefaultNetwork: cfg.Network,
	}, log)
	eng.SetCircuitBreaker(breaker)

	retries := NewRetryManager(eng, RetryConfig{
		Enabled:    cfg.Retry.Enabled,
		MaxRetries: cfg.Retry.MaxRetries,
		Interval:   cfg.Retry.Interval,
	}, log)
	eng.SetEmitter(events.Multi{metrics.Recorder{}, retries})

	healthServer := health.NewServer(health.Config{
		Port:          cfg.MetricsPort,
		WalletID:      cfg.WalletID,
		APIKey:        cfg.APIKey,
		MetricsAPIKey: cfg.MetricsAPIKey,
		AssetDecimals: cfg.AssetDecimals,

		RateLimitPerMinute: cfg.APIRateLimit.PerMinute,
		RateLimitBurst:     cfg.APIRateLimit.Burst,
		TrustProxyHeaders:  cfg.APITrustProxy,
	}, eng, breaker, log)

	return &Service{
		config:  cfg,
		store:   st,
		engine:  eng,
		gateway: gw,
		breaker: breaker,
		retries: retries,
		health:  healthServer,
		logger:  log,
	}, nil
}

// Engine returns the intent engine
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Start runs the service until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	go s.health.Start()

	s.retries.StartRetryHandler(ctx, &s.wg)
	s.resumeInterrupted()

	s.logger.Info("Keygate signer running for wallet %s", s.config.WalletID)
	<-ctx.Done()
	s.logger.Info("Context cancelled, shutting down service")

	s.Shutdown()
}

// Shutdown stops the HTTP server, waits for the retry handler and closes
// the journal and gateway.
func (s *Service) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.health.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down health server: %v", err)
	}

	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error("Error closing journal: %v", err)
	}
	if closer, ok := s.gateway.(interface{ Close() }); ok {
		closer.Close()
	}
}

// resumeInterrupted schedules intents whose execution was cut short by a restart
func (s *Service) resumeInterrupted() {
	for _, intent := range s.store.List() {
		if intent.Status.State == models.StatePending && intent.Status.Detail == store.InterruptedDetail {
			s.logger.NoticeWithIntent(intent.ID, "Execution was interrupted, scheduling retry")
			s.retries.ScheduleRetry(intent.ID, intent.Status.Detail)
		}
	}
}

func openJournal(path string) (store.Journal, error) {
	if path == "" {
		return store.NewMemJournal(), nil
	}
	journal, err := store.NewLevelJournal(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	return journal, nil
}
