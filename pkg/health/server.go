package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/amount"
	"github.com/keygate-hq/keygate-signer/pkg/circuitbreaker"
	"github.com/keygate-hq/keygate-signer/pkg/config"
	"github.com/keygate-hq/keygate-signer/pkg/engine"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/keygate-hq/keygate-signer/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the settings of the health and intent server
type Config struct {
	Port     string
	WalletID string
	// APIKey guards every endpoint except /health, /ready and /metrics
	APIKey        string
	MetricsAPIKey string
	AssetDecimals int32
	// RateLimitPerMinute throttles the intent endpoints per client, 0 disables it
	RateLimitPerMinute float64
	RateLimitBurst     int
	// TrustProxyHeaders keys the rate limit on X-Real-IP/X-Forwarded-For
	TrustProxyHeaders bool
}

// Server exposes health, status and intent endpoints over HTTP
type Server struct {
	cfg     Config
	engine  *engine.Engine
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
	srv     *http.Server
}

// NewServer creates a new health check server
func NewServer(cfg Config, eng *engine.Engine, cb *circuitbreaker.CircuitBreaker, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	s := &Server{
		cfg:     cfg,
		engine:  eng,
		breaker: cb,
		logger:  log,
	}
	s.srv = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// bearerAuth is a middleware that checks for a valid API key
func (s *Server) bearerAuth(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Get API key from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		// Check if the header has the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		// Validate API key
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(key)) != 1 {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", s.handleReady)

	limit := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if s.cfg.RateLimitPerMinute > 0 {
		limit = newRateLimiter(s.cfg.RateLimitPerMinute, s.cfg.RateLimitBurst, s.cfg.TrustProxyHeaders).middleware
	}
	guarded := func(h http.HandlerFunc) http.Handler { return s.bearerAuth(s.cfg.APIKey, h) }

	mux.Handle("/status", guarded(s.handleStatus))
	mux.Handle("/intents", guarded(limit(s.handleIntents)))
	mux.Handle("/intents/vote", guarded(limit(s.handleVote)))
	mux.Handle("/intents/execute", guarded(limit(s.handleExecute)))
	mux.Handle("/intents/cancel", guarded(limit(s.handleCancel)))
	mux.Handle("/journal", guarded(s.handleJournal))
	mux.Handle("/circuit/reset", guarded(s.handleCircuitReset))

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.bearerAuth(s.cfg.MetricsAPIKey, promhttp.Handler()))

	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() {
	s.logger.Info("Starting health and metrics server on port %s", s.cfg.Port)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Health server error: %v", err)
	}
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Readiness check
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.breaker != nil && s.breaker.IsOpen() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Gateway circuit open"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	counts := s.engine.Store().CountByState()
	byState := make(map[string]int, len(counts))
	total := 0
	for state, n := range counts {
		byState[string(state)] = n
		total += n
	}

	status := map[string]interface{}{
		"wallet":      s.cfg.WalletID,
		"intents":     byState,
		"total":       total,
		"outstanding": s.outstanding(),
	}

	if s.breaker != nil {
		circuitStatus := "closed"
		if s.breaker.IsOpen() {
			circuitStatus = "open"
		}
		failures, lastFailure, window, threshold := s.breaker.GetState()
		circuit := map[string]interface{}{
			"enabled":   s.breaker.IsEnabled(),
			"state":     circuitStatus,
			"failures":  failures,
			"threshold": threshold,
			"window":    window.String(),
		}
		if !lastFailure.IsZero() {
			circuit["last_failure"] = lastFailure.UTC().Format(time.RFC3339)
		}
		status["circuit"] = circuit
	}

	s.writeJSON(w, http.StatusOK, status)
}

// outstanding sums the amounts of non-terminal intents per asset, in major units
func (s *Server) outstanding() map[string]string {
	sums := make(map[string]amount.Amount)
	for _, intent := range s.engine.Store().List() {
		if intent.Terminal() {
			continue
		}
		sum, err := amount.Add(sums[intent.Asset], intent.Amount)
		if err != nil {
			s.logger.ErrorWithIntent(intent.ID, "Outstanding %s total overflows: %v", intent.Asset, err)
			continue
		}
		sums[intent.Asset] = sum
	}

	out := make(map[string]string, len(sums))
	for asset, sum := range sums {
		out[asset] = amount.Format(sum, s.decimals(asset))
	}
	return out
}

func (s *Server) decimals(asset string) int32 {
	if d, ok := config.GetAssetDecimals(asset); ok {
		return d
	}
	return s.cfg.AssetDecimals
}

type intentView struct {
	ID            uint64        `json:"id"`
	RemoteID      uint64        `json:"remote_id,omitempty"`
	Recipient     string        `json:"recipient"`
	Asset         string        `json:"asset"`
	Network       string        `json:"network"`
	Kind          string        `json:"kind"`
	Amount        string        `json:"amount"`
	AmountDisplay string        `json:"amount_display"`
	Approvals     []string      `json:"approvals"`
	Rejections    []string      `json:"rejections"`
	Status        models.Status `json:"status"`
}

func (s *Server) view(intent models.TransactionIntent) intentView {
	return intentView{
		ID:            intent.ID,
		RemoteID:      intent.RemoteID,
		Recipient:     intent.Recipient,
		Asset:         intent.Asset,
		Network:       string(intent.Network),
		Kind:          string(intent.Kind),
		Amount:        intent.Amount.String(),
		AmountDisplay: amount.Format(intent.Amount, s.decimals(intent.Asset)),
		Approvals:     signerStrings(intent.Approvals),
		Rejections:    signerStrings(intent.Rejections),
		Status:        intent.Status,
	}
}

type proposeBody struct {
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Network   string `json:"network"`
	Kind      string `json:"kind"`
	// Amount is in major units, e.g. "1.5"
	Amount string `json:"amount"`
}

type voteBody struct {
	ID      uint64 `json:"id"`
	Signer  string `json:"signer"`
	Approve bool   `json:"approve"`
}

type executeBody struct {
	ID     uint64 `json:"id"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	ID     uint64        `json:"id"`
	Status models.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// handleIntents lists or looks up intents on GET and proposes one on POST
func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		idStr := r.URL.Query().Get("id")
		if idStr == "" {
			intents := s.engine.Store().List()
			views := make([]intentView, 0, len(intents))
			for _, intent := range intents {
				views = append(views, s.view(intent))
			}
			s.writeJSON(w, http.StatusOK, views)
			return
		}

		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Invalid intent ID"))
			return
		}
		intent, err := s.engine.Get(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.view(intent))

	case http.MethodPost:
		var body proposeBody
		if !s.decode(w, r, &body) {
			return
		}

		a, err := amount.Parse(body.Amount, s.cfg.AssetDecimals)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", models.ErrInvalidAmount, err))
			return
		}
		if a.Minor() > math.MaxInt64 {
			s.writeError(w, fmt.Errorf("%w: amount too large", models.ErrInvalidAmount))
			return
		}

		req := engine.ProposeRequest{
			Recipient: body.Recipient,
			Asset:     body.Asset,
			Kind:      models.Kind(body.Kind),
			Amount:    int64(a.Minor()),
		}
		if body.Network != "" {
			network, err := models.ParseNetwork(body.Network)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
			req.Network = network
		}

		intent, err := s.engine.Propose(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, s.view(intent))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body voteBody
	if !s.decode(w, r, &body) {
		return
	}

	intent, err := s.engine.RecordVote(r.Context(), body.ID, models.Signer(body.Signer), body.Approve)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(intent))
}

// handleExecute always reports the intent status, together with the error if any
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body executeBody
	if !s.decode(w, r, &body) {
		return
	}

	status, err := s.engine.Execute(r.Context(), body.ID)
	s.writeStatus(w, body.ID, status, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body executeBody
	if !s.decode(w, r, &body) {
		return
	}

	status, err := s.engine.Cancel(body.ID, body.Reason)
	s.writeStatus(w, body.ID, status, err)
}

// handleJournal returns the audit trail: the ordered journal entries, or
// with view=records the per-intent records folded from them
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	journal := s.engine.Store().Journal()
	if r.URL.Query().Get("view") == "records" {
		records, err := journal.Records()
		if err != nil {
			s.writeError(w, err)
			return
		}
		views := make([]intentView, 0, len(records))
		for _, intent := range records {
			views = append(views, s.view(intent))
		}
		s.writeJSON(w, http.StatusOK, views)
		return
	}

	entries, err := journal.Entries()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// Circuit breaker admin control endpoint
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.breaker == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("No circuit breaker configured"))
		return
	}

	s.breaker.Reset()
	s.logger.Notice("Circuit breaker reset via admin endpoint")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Circuit breaker reset"))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(fmt.Sprintf("Invalid request body: %v", err)))
		return false
	}
	return true
}

func (s *Server) writeStatus(w http.ResponseWriter, id uint64, status models.Status, err error) {
	resp := statusResponse{ID: id, Status: status}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = statusCode(err)
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusCode(err), map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding JSON response: %v", err)
	}
}

// statusCode maps engine errors onto HTTP status codes
func statusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidRecipient),
		errors.Is(err, models.ErrInvalidSigner):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyTerminal),
		errors.Is(err, models.ErrAlreadyInProgress),
		errors.Is(err, models.ErrQuorumNotMet):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, models.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func signerStrings(set models.SignerSet) []string {
	sorted := set.Sorted()
	out := make([]string, len(sorted))
	for i, signer := range sorted {
		out[i] = string(signer)
	}
	return out
}
