package repository

import (
	"errors"
	"time"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
)

// Sentinel errors surfaced by the payout repository's initiate transaction.
// They are synchronous preconditions: callers return them to the triggering
// request instead of retrying.
var (
	ErrBudgetExceeded  = errors.New("survey budget exceeded")
	ErrDuplicatePayout = errors.New("payout already exists for response")
)

// UserRepository defines user-related database operations.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	TouchAPIKeyUsage(userID uint) error
	Update(user *models.User) error
}

// SurveyRepository defines survey-related database operations. Budget
// mutations live on PayoutRepository because they must share a transaction
// with payout status writes.
type SurveyRepository interface {
	Create(survey *models.Survey) error
	GetByID(id uint) (*models.Survey, error)
	Update(survey *models.Survey) error
}

// ResponseRepository defines survey response persistence.
type ResponseRepository interface {
	Create(response *models.SurveyResponse) error
	GetByID(id uint) (*models.SurveyResponse, error)
}

// PayoutRepository defines payout persistence including the budget-coupled
// transactions of the orchestrator.
type PayoutRepository interface {
	// InitiatePending atomically rejects duplicates, reserves the amount
	// against the survey budget and creates the PENDING request. Returns
	// ErrDuplicatePayout or ErrBudgetExceeded on precondition failure;
	// on any error nothing is written.
	InitiatePending(req *models.PayoutRequest) error
	GetByID(id uint) (*models.PayoutRequest, error)
	// GetByResponseID returns the newest request for a response.
	GetByResponseID(responseID uint) (*models.PayoutRequest, error)
	IncrementAttempt(id uint, attempt int, lastError string) error
	// MarkSuccessful transitions PENDING -> SUCCESSFUL. The budget
	// reservation already covers the amount; no accounting change happens.
	MarkSuccessful(id uint, providerRef string) error
	// MarkFailedAndRelease transitions PENDING -> FAILED and rolls the
	// budget reservation back in the same transaction.
	MarkFailedAndRelease(req *models.PayoutRequest, lastError string) error
}

// WebhookRepository defines webhook registration persistence. The delivery
// bookkeeping updates are per-registration and atomic so concurrent
// dispatches never need cross-registration locking.
type WebhookRepository interface {
	Create(reg *models.WebhookRegistration) error
	GetByID(id uint) (*models.WebhookRegistration, error)
	ListBySurvey(surveyID uint) ([]models.WebhookRegistration, error)
	ListActiveBySurvey(surveyID uint) ([]models.WebhookRegistration, error)
	// RecordSuccess stores the delivery outcome and resets the
	// consecutive-failure counter.
	RecordSuccess(id uint, status int, firedAt time.Time) error
	// RecordFailure increments the consecutive-failure counter and
	// deactivates the registration once it reaches threshold. Returns
	// whether the registration is now inactive.
	RecordFailure(id uint, status int, firedAt time.Time, threshold int) (bool, error)
	// Activate re-enables a registration and clears its failure counter.
	Activate(id uint) error
}

// EventRepository defines the append-only per-recipient event log.
type EventRepository interface {
	// Append inserts one event with a store-assigned, strictly increasing
	// per-recipient sequence.
	Append(recipientID uint, eventType string, payload string) (*models.Event, error)
	ListByRecipient(recipientID uint, afterSequence uint64, limit int) ([]models.Event, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
