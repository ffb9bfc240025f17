// Package reward is the submission entry point: it records a survey response
// and, when the response earns a reward, kicks off the asynchronous payout.
package reward

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/jobqueue"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/momo"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/payout"
)

// EventResponseSubmitted notifies the survey owner about a new response.
const EventResponseSubmitted = "response.submitted"

var (
	ErrSurveyNotAccepting = errors.New("survey is not accepting responses")
)

// PayoutEnqueuer queues background payout execution. Satisfied by the
// jobqueue manager.
type PayoutEnqueuer interface {
	EnqueuePayoutExecution(req *models.PayoutRequest) (*jobqueue.Job, error)
}

// SubmitInput is one incoming survey response. Phone defaults to the
// respondent's account phone when empty.
type SubmitInput struct {
	SurveyID     uint
	RespondentID uint
	Provider     string
	Phone        string
}

// SubmitResult reports what happened to the response and its reward. The
// response is always persisted; the reward part may be denied without
// failing the submission.
type SubmitResult struct {
	Response     *models.SurveyResponse `json:"response"`
	Payout       *models.PayoutRequest  `json:"payout,omitempty"`
	RewardDenied bool                   `json:"reward_denied"`
	DenialReason string                 `json:"denial_reason,omitempty"`
}

// Service coordinates response persistence with payout initiation and the
// owner notification. The payout itself settles in the background.
type Service struct {
	surveys      repository.SurveyRepository
	responses    repository.ResponseRepository
	users        repository.UserRepository
	orchestrator *payout.Orchestrator
	enqueuer     PayoutEnqueuer
	events       *eventlog.Service
}

func NewService(
	surveys repository.SurveyRepository,
	responses repository.ResponseRepository,
	users repository.UserRepository,
	orchestrator *payout.Orchestrator,
	enqueuer PayoutEnqueuer,
	events *eventlog.Service,
) *Service {
	return &Service{
		surveys:      surveys,
		responses:    responses,
		users:        users,
		orchestrator: orchestrator,
		enqueuer:     enqueuer,
		events:       events,
	}
}

// SubmitResponse records the response and initiates the reward payout. The
// submission succeeds even when the reward is denied (budget exhausted,
// duplicate, bad phone number); the denial and its reason come back in the
// result. Only a failure to persist the response itself returns an error.
func (s *Service) SubmitResponse(in SubmitInput) (*SubmitResult, error) {
	survey, err := s.surveys.GetByID(in.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey %d: %w", in.SurveyID, err)
	}
	if !survey.IsAcceptingResponses() {
		return nil, ErrSurveyNotAccepting
	}

	respondent, err := s.users.GetByID(in.RespondentID)
	if err != nil {
		return nil, fmt.Errorf("load respondent %d: %w", in.RespondentID, err)
	}

	response := &models.SurveyResponse{
		SurveyID:       survey.ID,
		RespondentID:   respondent.ID,
		RewardEligible: survey.RewardAmount > 0,
		RewardAmount:   survey.RewardAmount,
	}
	if err := s.responses.Create(response); err != nil {
		return nil, fmt.Errorf("persist response: %w", err)
	}

	result := &SubmitResult{Response: response}

	if response.RewardEligible {
		req, reason := s.startPayout(in, survey, respondent, response)
		if req != nil {
			result.Payout = req
		} else {
			result.RewardDenied = true
			result.DenialReason = reason
		}
	}

	s.notifyOwner(survey, response, result)
	return result, nil
}

// startPayout validates the recipient number, reserves budget and queues the
// transfer. Returns the pending request, or nil plus a denial reason.
func (s *Service) startPayout(in SubmitInput, survey *models.Survey, respondent *models.User, response *models.SurveyResponse) (*models.PayoutRequest, string) {
	provider, err := momo.ParseProvider(in.Provider)
	if err != nil {
		return nil, err.Error()
	}

	phone := in.Phone
	if phone == "" {
		phone = respondent.Phone
	}
	msisdn, err := momo.Normalize(provider, phone)
	if err != nil {
		return nil, err.Error()
	}

	req, err := s.orchestrator.Initiate(response.ID, survey.ID, respondent.ID, msisdn, survey.RewardAmount, provider)
	if err != nil {
		switch {
		case errors.Is(err, payout.ErrBudgetExceeded):
			return nil, "survey budget exhausted"
		case errors.Is(err, payout.ErrDuplicatePayout):
			return nil, "a payout for this response already exists"
		default:
			log.Errorf("[Reward] Payout initiation for response %d failed: %v", response.ID, err)
			return nil, "payout could not be initiated"
		}
	}

	s.dispatchExecution(req)
	return req, ""
}

// dispatchExecution hands the pending request to the background queue. When
// the queue is unavailable the transfer still runs, in-process, so an
// accepted reservation never sits PENDING forever.
func (s *Service) dispatchExecution(req *models.PayoutRequest) {
	if s.enqueuer != nil {
		if _, err := s.enqueuer.EnqueuePayoutExecution(req); err == nil {
			return
		} else {
			log.Errorf("[Reward] Enqueue of payout %d failed, executing inline: %v", req.ID, err)
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Reward] Recovered panic executing payout %d: %v", req.ID, r)
			}
		}()
		if err := s.orchestrator.Execute(context.Background(), req); err != nil {
			log.Warnf("[Reward] Inline execution of payout %d ended in failure: %v", req.ID, err)
		}
	}()
}

// notifyOwner appends the submission event for the survey owner. Best-effort;
// the submission result never depends on it.
func (s *Service) notifyOwner(survey *models.Survey, response *models.SurveyResponse, result *SubmitResult) {
	if s.events == nil {
		return
	}
	payloadMap := map[string]interface{}{
		"survey_id":     survey.ID,
		"response_id":   response.ID,
		"respondent_id": response.RespondentID,
		"reward_denied": result.RewardDenied,
	}
	if result.Payout != nil {
		payloadMap["payout_id"] = result.Payout.ID
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Reward] Recovered panic in owner notification: %v", r)
			}
		}()
		s.events.Publish(survey.OwnerID, EventResponseSubmitted, payloadMap)
	}()
}
