// Package payout turns reward-eligible responses into provider transfers.
// It owns the PayoutRequest state machine, idempotent reference issuance,
// retry with backoff, and the budget reserve/rollback accounting.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/momo"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/webhook"
)

// Event types emitted on terminal payout states.
const (
	EventPayoutSucceeded = "payout.succeeded"
	EventPayoutFailed    = "payout.failed"
)

// Synchronous precondition failures of Initiate. Everything after Initiate
// returns is asynchronous and terminates in request state, never in an
// error surfaced to unrelated code.
var (
	ErrBudgetExceeded  = repository.ErrBudgetExceeded
	ErrDuplicatePayout = repository.ErrDuplicatePayout
)

// errSettlementTimeout marks an attempt whose transfer never reached a
// terminal provider status within the polling window.
var errSettlementTimeout = errors.New("settlement timed out")

// Config bounds the orchestrator's retry and polling behavior. The defaults
// give at most three sequential attempts with doubling backoff and a short
// settlement-polling window per attempt.
type Config struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	PollInterval time.Duration
	PollMaxWait  time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		PollInterval: 3 * time.Second,
		PollMaxWait:  9 * time.Second,
	}
}

// Alerter is notified about terminally failed payouts (operator mail).
type Alerter interface {
	PayoutFailed(req *models.PayoutRequest, reason string)
}

// Orchestrator drives payouts from initiation to a terminal state.
type Orchestrator struct {
	cfg     Config
	clients map[momo.Provider]momo.Client
	payouts repository.PayoutRepository
	surveys repository.SurveyRepository
	events  *eventlog.Service
	hooks   *webhook.Dispatcher
	alerter Alerter
}

// NewOrchestrator wires an orchestrator. Provider clients are resolved here,
// once, by enum; the retry loop never branches on provider strings. The
// alerter may be nil.
func NewOrchestrator(
	cfg Config,
	clients map[momo.Provider]momo.Client,
	payouts repository.PayoutRepository,
	surveys repository.SurveyRepository,
	events *eventlog.Service,
	hooks *webhook.Dispatcher,
	alerter Alerter,
) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Orchestrator{
		cfg:     cfg,
		clients: clients,
		payouts: payouts,
		surveys: surveys,
		events:  events,
		hooks:   hooks,
		alerter: alerter,
	}
}

// Initiate validates preconditions, reserves budget and creates the PENDING
// request in one transaction. It never blocks on the network; the transfer
// itself happens later in Execute. Returns ErrBudgetExceeded or
// ErrDuplicatePayout synchronously so the triggering action can deny the
// reward.
func (o *Orchestrator) Initiate(responseID, surveyID, respondentID uint, phone string, amount int64, provider momo.Provider) (*models.PayoutRequest, error) {
	if _, ok := o.clients[provider]; !ok {
		return nil, fmt.Errorf("no client configured for provider %q", provider)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("payout amount must be positive, got %d", amount)
	}

	survey, err := o.surveys.GetByID(surveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey %d: %w", surveyID, err)
	}

	req := &models.PayoutRequest{
		ResponseID:           responseID,
		SurveyID:             surveyID,
		RespondentID:         respondentID,
		RecipientPhone:       phone,
		Provider:             string(provider),
		Amount:               amount,
		Currency:             survey.Currency,
		IdempotencyReference: uuid.New().String(),
	}

	if err := o.payouts.InitiatePending(req); err != nil {
		return nil, err
	}

	log.Infof("[Payout] Initiated request %d for response %d (%d %s via %s, ref %s)",
		req.ID, responseID, amount, req.Currency, provider, req.IdempotencyReference)
	return req, nil
}

// Execute runs the transfer to a terminal state. Attempts for one request
// are strictly sequential and reuse the idempotency reference, so a
// provider-side retry can never duplicate the transfer. Execute is a
// background task: the returned error is for the job runner's log only, all
// outcomes are already persisted.
func (o *Orchestrator) Execute(ctx context.Context, req *models.PayoutRequest) error {
	client, ok := o.clients[momo.Provider(req.Provider)]
	if !ok {
		err := fmt.Errorf("no client configured for provider %q", req.Provider)
		o.finalizeFailure(req, err)
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(o.backoff(attempt - 1))
			req.Attempt = attempt
			if err := o.payouts.IncrementAttempt(req.ID, attempt, lastErr.Error()); err != nil {
				log.Errorf("[Payout] Failed to record attempt %d for request %d: %v", attempt, req.ID, err)
			}
		}

		ack, err := o.runAttempt(ctx, client, req)
		if err == nil {
			o.finalizeSuccess(req, ack)
			return nil
		}

		lastErr = err
		log.Warnf("[Payout] Request %d attempt %d/%d failed: %v", req.ID, attempt, o.cfg.MaxAttempts, err)
	}

	o.finalizeFailure(req, lastErr)
	return lastErr
}

// backoff returns the delay before the (n+1)-th attempt: base, 2*base,
// 4*base, ...
func (o *Orchestrator) backoff(n int) time.Duration {
	return o.cfg.BackoffBase << (n - 1)
}

// runAttempt performs one full credential+submit+settle cycle. Credential
// failures go through the same retry path as submission failures; the error
// text keeps them apart in logs.
func (o *Orchestrator) runAttempt(ctx context.Context, client momo.Client, req *models.PayoutRequest) (string, error) {
	token, err := client.AcquireToken(ctx, momo.PurposeDisbursement)
	if err != nil {
		return "", err
	}

	ack, err := client.SubmitTransfer(ctx, token, momo.Transfer{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Phone:     req.RecipientPhone,
		Reference: req.IdempotencyReference,
		Reason:    fmt.Sprintf("SurveyPesa reward for response %d", req.ResponseID),
	})
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(o.cfg.PollMaxWait)
	for {
		time.Sleep(o.cfg.PollInterval)

		status, err := client.QueryStatus(ctx, token, req.IdempotencyReference)
		if err != nil {
			log.Warnf("[Payout] Status query for request %d failed: %v", req.ID, err)
		} else {
			switch status {
			case momo.StatusSuccessful:
				return ack, nil
			case momo.StatusFailed:
				return "", fmt.Errorf("provider reported transfer %s as FAILED", req.IdempotencyReference)
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("transfer %s: %w after %s", req.IdempotencyReference, errSettlementTimeout, o.cfg.PollMaxWait)
		}
	}
}

// finalizeSuccess persists the terminal success. The optimistic budget
// reservation already covers the amount, so no accounting change happens.
func (o *Orchestrator) finalizeSuccess(req *models.PayoutRequest, ack string) {
	if err := o.payouts.MarkSuccessful(req.ID, ack); err != nil {
		log.Errorf("[Payout] Failed to persist success for request %d: %v", req.ID, err)
		return
	}
	req.MarkSuccessful(ack)
	log.Infof("[Payout] Request %d settled successfully (provider ref %s)", req.ID, ack)
	o.fanOut(req, EventPayoutSucceeded)
}

// finalizeFailure persists the terminal failure and rolls the budget
// reservation back in the same transaction.
func (o *Orchestrator) finalizeFailure(req *models.PayoutRequest, cause error) {
	reason := cause.Error()
	if err := o.payouts.MarkFailedAndRelease(req, reason); err != nil {
		log.Errorf("[Payout] Failed to persist failure for request %d: %v", req.ID, err)
		return
	}
	req.MarkFailed(reason)
	log.Errorf("[Payout] Request %d failed after %d attempts: %s", req.ID, req.Attempt, reason)

	o.fanOut(req, EventPayoutFailed)
	if o.alerter != nil {
		o.alerter.PayoutFailed(req, reason)
	}
}

// fanOut notifies the respondent, the survey owner and external webhooks
// about a terminal state. Each leg is fire-and-forget with its own error
// boundary; none of them can fail the payout flow.
func (o *Orchestrator) fanOut(req *models.PayoutRequest, eventType string) {
	payload := map[string]interface{}{
		"payout_id":   req.ID,
		"response_id": req.ResponseID,
		"survey_id":   req.SurveyID,
		"provider":    req.Provider,
		"amount":      req.Amount,
		"currency":    req.Currency,
		"status":      req.Status,
		"reference":   req.IdempotencyReference,
	}
	if req.LastError != "" {
		payload["error"] = req.LastError
	}

	recipients := []uint{req.RespondentID}
	if survey, err := o.surveys.GetByID(req.SurveyID); err == nil {
		recipients = append(recipients, survey.OwnerID)
	} else {
		log.Warnf("[Payout] Could not resolve owner for survey %d: %v", req.SurveyID, err)
	}

	if o.events != nil {
		go func() {
			defer logPanic("event fan-out")
			o.events.PublishToMany(recipients, eventType, payload)
		}()
	}
	if o.hooks != nil {
		go func() {
			defer logPanic("webhook fan-out")
			o.hooks.Dispatch(req.SurveyID, eventType, payload)
		}()
	}
}

func logPanic(scope string) {
	if r := recover(); r != nil {
		log.Errorf("[Payout] Recovered panic in %s: %v", scope, r)
	}
}
