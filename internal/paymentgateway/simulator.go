package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	gatewaytypes "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
)

// CompletionJob asks a worker to settle a session and deliver its webhook.
type CompletionJob struct {
	SessionID string
	Delay     time.Duration
}

type Worker struct {
	ID         int
	WorkerPool chan chan CompletionJob
	JobChannel chan CompletionJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan CompletionJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan CompletionJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(CompletionJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "session_id", job.SessionID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type SimulatorConfig struct {
	// PublicURL is where the simulator itself is reachable; checkout URLs point here.
	PublicURL     string
	WebhookURL    string
	WebhookSecret string
	// AutoCompleteAfter completes every new session after the delay. Zero waits for
	// an explicit POST /checkout/{id}/complete.
	AutoCompleteAfter time.Duration
	MaxWorkers        int
	JobQueueSize      int
	DeliveryAttempts  uint64
}

// Simulator is an in-process stand-in for the hosted checkout gateway. It serves
// the same session API the Client calls and posts signed completion webhooks.
type Simulator struct {
	config     SimulatorConfig
	logger     *slog.Logger
	httpClient *http.Client

	mu       sync.RWMutex
	sessions map[string]*simSession

	jobQueue   chan CompletionJob
	workerPool chan chan CompletionJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type simSession struct {
	session    gatewaytypes.CheckoutSession
	successURL string
	cancelURL  string
}

func NewSimulator(config SimulatorConfig, logger *slog.Logger) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())

	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	if config.JobQueueSize <= 0 {
		config.JobQueueSize = 100
	}
	if config.DeliveryAttempts == 0 {
		config.DeliveryAttempts = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Simulator{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sessions:   make(map[string]*simSession),
		maxWorkers: config.MaxWorkers,
		jobQueue:   make(chan CompletionJob, config.JobQueueSize),
		workerPool: make(chan chan CompletionJob, config.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.startWorkerPool()
	return s
}

func (s *Simulator) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.maxWorkers; i++ {
			worker := NewWorker(i, s.workerPool, s.logger)
			worker.Start(s.ctx, &s.wg, s.processCompletion)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("gateway simulator worker pool started",
			"max_workers", s.maxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

func (s *Simulator) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					s.logger.Info("dispatcher shutting down")
					return
				}
			case <-s.ctx.Done():
				s.logger.Info("dispatcher shutting down")
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (s *Simulator) Shutdown() {
	s.logger.Info("shutting down gateway simulator")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("gateway simulator shutdown complete")
}

// Routes mounts the session API and the payer-facing checkout endpoints.
func (s *Simulator) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/checkout/sessions", s.handleCreate)
	r.Get("/v1/checkout/sessions/{id}", s.handleGet)
	r.Get("/checkout/{id}", s.handleGet)
	r.Post("/checkout/{id}/complete", s.handleComplete)
	return r
}

func (s *Simulator) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req gatewaytypes.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSimJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeSimJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	session := s.CreateSession(req)
	writeSimJSON(w, http.StatusOK, session)
}

func (s *Simulator) handleGet(w http.ResponseWriter, r *http.Request) {
	session, ok := s.Session(chi.URLParam(r, "id"))
	if !ok {
		writeSimJSON(w, http.StatusNotFound, map[string]string{"error": "no such session"})
		return
	}
	writeSimJSON(w, http.StatusOK, session)
}

func (s *Simulator) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	redirect, err := s.Complete(id)
	if err != nil {
		writeSimJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeSimJSON(w, http.StatusOK, map[string]string{"redirect_url": redirect})
}

// CreateSession registers an open session for req.
func (s *Simulator) CreateSession(req gatewaytypes.CheckoutRequest) gatewaytypes.CheckoutSession {
	id := "cs_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	amount := req.Amount
	session := gatewaytypes.CheckoutSession{
		ID:              id,
		URL:             strings.TrimRight(s.config.PublicURL, "/") + "/checkout/" + id,
		Status:          gatewaytypes.SessionStatusOpen,
		PaymentStatus:   gatewaytypes.PaymentStatusUnpaid,
		AmountTotal:     &amount,
		Currency:        req.Currency,
		ClientReference: req.ClientReference,
	}

	s.mu.Lock()
	s.sessions[id] = &simSession{session: session, successURL: req.SuccessURL, cancelURL: req.CancelURL}
	s.mu.Unlock()

	s.logger.Info("gateway simulator: session created",
		"session_id", id,
		"client_reference_id", req.ClientReference,
		"amount", req.Amount)

	if s.config.AutoCompleteAfter > 0 {
		s.enqueue(CompletionJob{SessionID: id, Delay: s.config.AutoCompleteAfter})
	}
	return session
}

func (s *Simulator) Session(id string) (gatewaytypes.CheckoutSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return gatewaytypes.CheckoutSession{}, false
	}
	return sess.session, true
}

// Complete marks the session paid, queues its webhook and returns the payer's
// success redirect.
func (s *Simulator) Complete(id string) (string, error) {
	session, successURL, err := s.markPaid(id)
	if err != nil {
		return "", err
	}
	s.enqueue(CompletionJob{SessionID: session.ID})
	return strings.ReplaceAll(successURL, "{CHECKOUT_SESSION_ID}", session.ID), nil
}

func (s *Simulator) markPaid(id string) (gatewaytypes.CheckoutSession, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return gatewaytypes.CheckoutSession{}, "", fmt.Errorf("no such session %q", id)
	}
	if sess.session.Status != gatewaytypes.SessionStatusComplete {
		sess.session.Status = gatewaytypes.SessionStatusComplete
		sess.session.PaymentStatus = gatewaytypes.PaymentStatusPaid
		sess.session.PaymentIntent = "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return sess.session, sess.successURL, nil
}

func (s *Simulator) enqueue(job CompletionJob) {
	select {
	case s.jobQueue <- job:
		s.logger.Info("gateway simulator: completion queued",
			"session_id", job.SessionID,
			"queue_length", len(s.jobQueue))
	default:
		s.logger.Warn("gateway simulator: job queue full, dropping completion",
			"session_id", job.SessionID,
			"queue_capacity", cap(s.jobQueue))
	}
}

func (s *Simulator) processCompletion(job CompletionJob) {
	if job.Delay > 0 {
		select {
		case <-time.After(job.Delay):
		case <-s.ctx.Done():
			s.logger.Info("completion job cancelled", "session_id", job.SessionID)
			return
		}
		if _, _, err := s.markPaid(job.SessionID); err != nil {
			s.logger.Error("gateway simulator: cannot complete session", "error", err)
			return
		}
	}

	session, ok := s.Session(job.SessionID)
	if !ok {
		return
	}
	s.sendWebhook(session)
}

func (s *Simulator) sendWebhook(session gatewaytypes.CheckoutSession) {
	if s.config.WebhookURL == "" {
		return
	}

	object, err := json.Marshal(session)
	if err != nil {
		s.logger.Error("gateway simulator: failed to marshal session", "error", err)
		return
	}
	event := gatewaytypes.Event{
		ID:   "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type: gatewaytypes.EventCheckoutCompleted,
	}
	event.Data.Object = object

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("gateway simulator: failed to marshal event", "error", err)
		return
	}

	backoff := retry.WithMaxRetries(s.config.DeliveryAttempts-1, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(s.ctx, backoff, func(ctx context.Context) error {
		return s.postWebhook(ctx, payload)
	})
	if err != nil {
		s.logger.Error("gateway simulator: webhook delivery failed",
			"error", err,
			"session_id", session.ID,
			"event_id", event.ID)
		return
	}

	s.logger.Info("gateway simulator: webhook delivered",
		"session_id", session.ID,
		"event_id", event.ID)
}

func (s *Simulator) postWebhook(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(s.config.WebhookSecret, payload, time.Now()))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	default:
		return errors.New("webhook rejected with status " + http.StatusText(resp.StatusCode))
	}
}

func writeSimJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
