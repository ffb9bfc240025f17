package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/jobqueue"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/momo"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/payout"
)

// fixture wires a reward service over in-memory repositories and an
// immediately settling provider client.
type fixture struct {
	mu        sync.Mutex
	surveys   map[uint]*models.Survey
	users     map[uint]*models.User
	responses map[uint]*models.SurveyResponse
	payouts   map[uint]*models.PayoutRequest
	nextID    uint

	service  *Service
	enqueuer *fakeEnqueuer
}

type fixtureSurveyRepo struct{ f *fixture }

func (r *fixtureSurveyRepo) Create(s *models.Survey) error { return nil }

func (r *fixtureSurveyRepo) GetByID(id uint) (*models.Survey, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.surveys[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fixtureSurveyRepo) Update(s *models.Survey) error { return nil }

type fixtureUserRepo struct{ f *fixture }

func (r *fixtureUserRepo) Create(u *models.User) error { return nil }

func (r *fixtureUserRepo) GetByID(id uint) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fixtureUserRepo) GetByEmail(email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *fixtureUserRepo) GetByAPIKeyHash(hash string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *fixtureUserRepo) TouchAPIKeyUsage(userID uint) error { return nil }

func (r *fixtureUserRepo) Update(u *models.User) error { return nil }

type fixtureResponseRepo struct{ f *fixture }

func (r *fixtureResponseRepo) Create(resp *models.SurveyResponse) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	resp.ID = r.f.nextID
	r.f.nextID++
	cp := *resp
	r.f.responses[resp.ID] = &cp
	return nil
}

func (r *fixtureResponseRepo) GetByID(id uint) (*models.SurveyResponse, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	resp, ok := r.f.responses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *resp
	return &cp, nil
}

type fixturePayoutRepo struct{ f *fixture }

func (r *fixturePayoutRepo) InitiatePending(req *models.PayoutRequest) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.payouts {
		if existing.ResponseID == req.ResponseID && existing.Status != models.PayoutStatusFailed {
			return repository.ErrDuplicatePayout
		}
	}
	s, ok := r.f.surveys[req.SurveyID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if s.TotalBudget != nil && s.AmountDisbursed+req.Amount > *s.TotalBudget {
		return repository.ErrBudgetExceeded
	}
	s.AmountDisbursed += req.Amount
	req.ID = r.f.nextID
	r.f.nextID++
	req.Status = models.PayoutStatusPending
	req.Attempt = 1
	cp := *req
	r.f.payouts[req.ID] = &cp
	return nil
}

func (r *fixturePayoutRepo) GetByID(id uint) (*models.PayoutRequest, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	req, ok := r.f.payouts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fixturePayoutRepo) GetByResponseID(responseID uint) (*models.PayoutRequest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *fixturePayoutRepo) IncrementAttempt(id uint, attempt int, lastError string) error {
	return nil
}

func (r *fixturePayoutRepo) MarkSuccessful(id uint, providerRef string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	req, ok := r.f.payouts[id]
	if !ok || req.Status != models.PayoutStatusPending {
		return gorm.ErrRecordNotFound
	}
	req.MarkSuccessful(providerRef)
	return nil
}

func (r *fixturePayoutRepo) MarkFailedAndRelease(req *models.PayoutRequest, lastError string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	stored, ok := r.f.payouts[req.ID]
	if !ok || stored.Status != models.PayoutStatusPending {
		return gorm.ErrRecordNotFound
	}
	stored.MarkFailed(lastError)
	if s, ok := r.f.surveys[stored.SurveyID]; ok {
		s.AmountDisbursed -= stored.Amount
	}
	return nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []uint
	err      error
}

func (e *fakeEnqueuer) EnqueuePayoutExecution(req *models.PayoutRequest) (*jobqueue.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.enqueued = append(e.enqueued, req.ID)
	return &jobqueue.Job{Type: jobqueue.JobTypePayoutExecute}, nil
}

func (e *fakeEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enqueued)
}

type immediateClient struct{}

func (immediateClient) Provider() momo.Provider { return momo.ProviderMTN }

func (immediateClient) AcquireToken(ctx context.Context, purpose momo.Purpose) (momo.Token, error) {
	return momo.Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (immediateClient) SubmitTransfer(ctx context.Context, token momo.Token, t momo.Transfer) (string, error) {
	return t.Reference, nil
}

func (immediateClient) QueryStatus(ctx context.Context, token momo.Token, reference string) (momo.TransferStatus, error) {
	return momo.StatusSuccessful, nil
}

func budget(v int64) *int64 { return &v }

func newFixture(survey *models.Survey, user *models.User) *fixture {
	f := &fixture{
		surveys:   map[uint]*models.Survey{survey.ID: survey},
		users:     map[uint]*models.User{user.ID: user},
		responses: make(map[uint]*models.SurveyResponse),
		payouts:   make(map[uint]*models.PayoutRequest),
		nextID:    1,
		enqueuer:  &fakeEnqueuer{},
	}

	orchestrator := payout.NewOrchestrator(
		payout.Config{MaxAttempts: 1, BackoffBase: time.Millisecond, PollInterval: time.Millisecond, PollMaxWait: 5 * time.Millisecond},
		map[momo.Provider]momo.Client{momo.ProviderMTN: immediateClient{}},
		&fixturePayoutRepo{f: f},
		&fixtureSurveyRepo{f: f},
		nil,
		nil,
		nil,
	)

	f.service = NewService(
		&fixtureSurveyRepo{f: f},
		&fixtureResponseRepo{f: f},
		&fixtureUserRepo{f: f},
		orchestrator,
		f.enqueuer,
		nil,
	)
	return f
}

func activeSurvey() *models.Survey {
	return &models.Survey{
		ID: 1, OwnerID: 9, Status: models.SurveyStatusActive,
		RewardAmount: 1000, Currency: "UGX", TotalBudget: budget(2000),
	}
}

func respondent() *models.User {
	return &models.User{ID: 2, Phone: "0772123456", Status: models.STATUS_ACTIVE}
}

func TestSubmitResponseTriggersPayout(t *testing.T) {
	f := newFixture(activeSurvey(), respondent())

	result, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "mtn"})
	require.NoError(t, err)

	require.NotNil(t, result.Response)
	assert.True(t, result.Response.RewardEligible)
	assert.Equal(t, int64(1000), result.Response.RewardAmount)

	require.NotNil(t, result.Payout)
	assert.False(t, result.RewardDenied)
	// Account phone was normalized for the MTN wire format
	assert.Equal(t, "256772123456", result.Payout.RecipientPhone)
	assert.Equal(t, 1, f.enqueuer.count())
}

func TestSubmitResponseExplicitPhoneWins(t *testing.T) {
	f := newFixture(activeSurvey(), respondent())

	result, err := f.service.SubmitResponse(SubmitInput{
		SurveyID: 1, RespondentID: 2, Provider: "mtn", Phone: "0789999999",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Payout)
	assert.Equal(t, "256789999999", result.Payout.RecipientPhone)
}

func TestSubmitResponseInactiveSurvey(t *testing.T) {
	survey := activeSurvey()
	survey.Status = models.SurveyStatusClosed
	f := newFixture(survey, respondent())

	_, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "mtn"})
	require.ErrorIs(t, err, ErrSurveyNotAccepting)
	assert.Empty(t, f.responses)
}

func TestSubmitResponseBudgetExhaustedDeniesReward(t *testing.T) {
	survey := activeSurvey()
	survey.AmountDisbursed = 2000 // budget fully reserved
	f := newFixture(survey, respondent())

	result, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "mtn"})
	require.NoError(t, err, "the response itself must still be accepted")

	assert.NotNil(t, result.Response)
	assert.True(t, result.RewardDenied)
	assert.Contains(t, result.DenialReason, "budget")
	assert.Nil(t, result.Payout)
	assert.Equal(t, 0, f.enqueuer.count())
}

func TestSubmitResponseBadPhoneDeniesReward(t *testing.T) {
	user := respondent()
	user.Phone = "0701234567" // Airtel number, MTN provider requested
	f := newFixture(activeSurvey(), user)

	result, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "mtn"})
	require.NoError(t, err)
	assert.True(t, result.RewardDenied)
	assert.Nil(t, result.Payout)
}

func TestSubmitResponseUnknownProviderDeniesReward(t *testing.T) {
	f := newFixture(activeSurvey(), respondent())

	result, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "tigo"})
	require.NoError(t, err)
	assert.True(t, result.RewardDenied)
	assert.Nil(t, result.Payout)
}

func TestSubmitResponseZeroRewardSurvey(t *testing.T) {
	survey := activeSurvey()
	survey.RewardAmount = 0
	f := newFixture(survey, respondent())

	result, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "mtn"})
	require.NoError(t, err)

	assert.False(t, result.Response.RewardEligible)
	assert.False(t, result.RewardDenied)
	assert.Nil(t, result.Payout)
	assert.Equal(t, 0, f.enqueuer.count())
}

func TestSubmitResponseFallsBackToInlineExecution(t *testing.T) {
	f := newFixture(activeSurvey(), respondent())
	f.enqueuer.err = errors.New("redis down")

	result, err := f.service.SubmitResponse(SubmitInput{SurveyID: 1, RespondentID: 2, Provider: "mtn"})
	require.NoError(t, err)
	require.NotNil(t, result.Payout)

	// The inline goroutine drives the payout to a terminal state
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		stored, ok := f.payouts[result.Payout.ID]
		return ok && stored.Status == models.PayoutStatusSuccessful
	}, 2*time.Second, 10*time.Millisecond)
}
