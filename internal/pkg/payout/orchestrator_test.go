package payout

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
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/momo"
)

// memoryStore backs the survey and payout repository fakes with the same
// locking discipline the SQL transactions provide.
type memoryStore struct {
	mu      sync.Mutex
	surveys map[uint]*models.Survey
	payouts map[uint]*models.PayoutRequest
	nextID  uint
}

func newMemoryStore(surveys ...*models.Survey) *memoryStore {
	s := &memoryStore{
		surveys: make(map[uint]*models.Survey),
		payouts: make(map[uint]*models.PayoutRequest),
		nextID:  1,
	}
	for _, sv := range surveys {
		s.surveys[sv.ID] = sv
	}
	return s
}

type memorySurveyRepo struct{ store *memoryStore }

func (r *memorySurveyRepo) Create(survey *models.Survey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.surveys[survey.ID] = survey
	return nil
}

func (r *memorySurveyRepo) GetByID(id uint) (*models.Survey, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sv, ok := r.store.surveys[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sv
	return &cp, nil
}

func (r *memorySurveyRepo) Update(survey *models.Survey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.surveys[survey.ID] = survey
	return nil
}

type memoryPayoutRepo struct{ store *memoryStore }

func (r *memoryPayoutRepo) InitiatePending(req *models.PayoutRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.payouts {
		if existing.ResponseID == req.ResponseID && existing.Status != models.PayoutStatusFailed {
			return repository.ErrDuplicatePayout
		}
	}

	sv, ok := r.store.surveys[req.SurveyID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if sv.TotalBudget != nil && sv.AmountDisbursed+req.Amount > *sv.TotalBudget {
		return repository.ErrBudgetExceeded
	}
	sv.AmountDisbursed += req.Amount

	req.ID = r.store.nextID
	r.store.nextID++
	req.Status = models.PayoutStatusPending
	req.Attempt = 1
	cp := *req
	r.store.payouts[req.ID] = &cp
	return nil
}

func (r *memoryPayoutRepo) GetByID(id uint) (*models.PayoutRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.payouts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memoryPayoutRepo) GetByResponseID(responseID uint) (*models.PayoutRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var newest *models.PayoutRequest
	for _, req := range r.store.payouts {
		if req.ResponseID == responseID && (newest == nil || req.ID > newest.ID) {
			newest = req
		}
	}
	if newest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *newest
	return &cp, nil
}

func (r *memoryPayoutRepo) IncrementAttempt(id uint, attempt int, lastError string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.payouts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	req.Attempt = attempt
	req.LastError = lastError
	return nil
}

func (r *memoryPayoutRepo) MarkSuccessful(id uint, providerRef string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.payouts[id]
	if !ok || req.Status != models.PayoutStatusPending {
		return gorm.ErrRecordNotFound
	}
	req.MarkSuccessful(providerRef)
	return nil
}

func (r *memoryPayoutRepo) MarkFailedAndRelease(req *models.PayoutRequest, lastError string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored, ok := r.store.payouts[req.ID]
	if !ok || stored.Status != models.PayoutStatusPending {
		return gorm.ErrRecordNotFound
	}
	stored.MarkFailed(lastError)
	if sv, ok := r.store.surveys[stored.SurveyID]; ok {
		sv.AmountDisbursed -= stored.Amount
	}
	return nil
}

// scriptedClient plays back a sequence of per-attempt outcomes.
type scriptedClient struct {
	mu         sync.Mutex
	provider   momo.Provider
	outcomes   []attemptOutcome
	submits    int
	references []string
}

type attemptOutcome struct {
	tokenErr  error
	submitErr error
	status    momo.TransferStatus
	statusErr error
}

func (c *scriptedClient) Provider() momo.Provider { return c.provider }

func (c *scriptedClient) current() attemptOutcome {
	if c.submits < len(c.outcomes) {
		return c.outcomes[c.submits]
	}
	return c.outcomes[len(c.outcomes)-1]
}

func (c *scriptedClient) AcquireToken(ctx context.Context, purpose momo.Purpose) (momo.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.current().tokenErr; err != nil {
		c.submits++
		return momo.Token{}, err
	}
	return momo.Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (c *scriptedClient) SubmitTransfer(ctx context.Context, token momo.Token, t momo.Transfer) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcome := c.current()
	c.submits++
	c.references = append(c.references, t.Reference)
	if outcome.submitErr != nil {
		return "", outcome.submitErr
	}
	return t.Reference, nil
}

func (c *scriptedClient) QueryStatus(ctx context.Context, token momo.Token, reference string) (momo.TransferStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// submits was already advanced; the poll belongs to the previous attempt
	outcome := c.outcomes[min(c.submits-1, len(c.outcomes)-1)]
	if outcome.statusErr != nil {
		return "", outcome.statusErr
	}
	return outcome.status, nil
}

func testConfig() Config {
	return Config{
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		PollInterval: time.Millisecond,
		PollMaxWait:  5 * time.Millisecond,
	}
}

func budget(v int64) *int64 { return &v }

func newTestOrchestrator(store *memoryStore, client *scriptedClient) (*Orchestrator, *memoryPayoutRepo) {
	payouts := &memoryPayoutRepo{store: store}
	surveys := &memorySurveyRepo{store: store}
	o := NewOrchestrator(
		testConfig(),
		map[momo.Provider]momo.Client{client.provider: client},
		payouts,
		surveys,
		nil, // events
		nil, // hooks
		nil, // alerter
	)
	return o, payouts
}

func TestInitiateAndExecuteSuccess(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, OwnerID: 5, Currency: "UGX", TotalBudget: budget(2000)})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{{status: momo.StatusSuccessful}}}
	o, payouts := newTestOrchestrator(store, client)

	req, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusPending, req.Status)
	assert.NotEmpty(t, req.IdempotencyReference)

	// Budget is reserved before any network traffic
	assert.Equal(t, int64(1000), store.surveys[1].AmountDisbursed)

	require.NoError(t, o.Execute(context.Background(), req))

	stored, err := payouts.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusSuccessful, stored.Status)
	assert.Equal(t, req.IdempotencyReference, stored.ProviderReference)
	assert.NotNil(t, stored.CompletedAt)
	// Reservation stays after settlement
	assert.Equal(t, int64(1000), store.surveys[1].AmountDisbursed)
}

func TestInitiateRejectsOverBudget(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX", TotalBudget: budget(1500)})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{{status: momo.StatusSuccessful}}}
	o, _ := newTestOrchestrator(store, client)

	_, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)

	// 1000 reserved of 1500: a second 1000 payout must be refused whole
	_, err = o.Initiate(11, 1, 3, "256772123457", 1000, momo.ProviderMTN)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, int64(1000), store.surveys[1].AmountDisbursed)

	// A smaller amount that still fits goes through
	_, err = o.Initiate(12, 1, 4, "256772123458", 500, momo.ProviderMTN)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), store.surveys[1].AmountDisbursed)
}

func TestInitiateUnlimitedBudget(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX", TotalBudget: nil})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{{status: momo.StatusSuccessful}}}
	o, _ := newTestOrchestrator(store, client)

	for i := uint(0); i < 5; i++ {
		_, err := o.Initiate(10+i, 1, 2+i, "256772123456", 100000, momo.ProviderMTN)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(500000), store.surveys[1].AmountDisbursed)
}

func TestInitiateRejectsDuplicateResponse(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX"})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{{status: momo.StatusSuccessful}}}
	o, _ := newTestOrchestrator(store, client)

	_, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)

	_, err = o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.ErrorIs(t, err, ErrDuplicatePayout)
	// The duplicate must not reserve budget
	assert.Equal(t, int64(1000), store.surveys[1].AmountDisbursed)
}

func TestInitiateAfterFailureIsAllowed(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX"})
	failing := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{
		{submitErr: errors.New("network down")},
	}}
	o, _ := newTestOrchestrator(store, failing)

	req, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)
	require.Error(t, o.Execute(context.Background(), req))

	// The first request is terminally FAILED, so a fresh one may be initiated
	req2, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)
	assert.NotEqual(t, req.IdempotencyReference, req2.IdempotencyReference)
}

func TestExecuteRetriesWithSameReference(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX", TotalBudget: budget(5000)})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{
		{submitErr: &momo.SubmissionError{Provider: momo.ProviderMTN, Err: errors.New("rejected")}},
		{tokenErr: &momo.CredentialError{Provider: momo.ProviderMTN, Err: errors.New("auth hiccup")}},
		{status: momo.StatusSuccessful},
	}}
	o, payouts := newTestOrchestrator(store, client)

	req, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)
	require.NoError(t, o.Execute(context.Background(), req))

	// Attempt 2 failed at token acquisition, so only attempts 1 and 3 submitted,
	// both with the same idempotency reference
	require.Len(t, client.references, 2)
	assert.Equal(t, req.IdempotencyReference, client.references[0])
	assert.Equal(t, req.IdempotencyReference, client.references[1])

	stored, _ := payouts.GetByID(req.ID)
	assert.Equal(t, models.PayoutStatusSuccessful, stored.Status)
	assert.Equal(t, 3, stored.Attempt)
	// Success on a late attempt keeps the reservation
	assert.Equal(t, int64(1000), store.surveys[1].AmountDisbursed)
}

func TestExecuteFailsAfterMaxAttemptsAndReleasesBudget(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX", TotalBudget: budget(5000)})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{
		{submitErr: errors.New("always down")},
	}}
	o, payouts := newTestOrchestrator(store, client)

	req, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), store.surveys[1].AmountDisbursed)

	err = o.Execute(context.Background(), req)
	require.Error(t, err)

	// Exactly MaxAttempts submissions, no more
	assert.Equal(t, 3, client.submits)

	stored, _ := payouts.GetByID(req.ID)
	assert.Equal(t, models.PayoutStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "always down")
	// The reservation is rolled back with the terminal failure
	assert.Equal(t, int64(0), store.surveys[1].AmountDisbursed)
}

func TestExecuteSettlementTimeoutIsAFailedAttempt(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX"})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{
		{status: momo.StatusPending}, // never settles
		{status: momo.StatusSuccessful},
	}}
	o, payouts := newTestOrchestrator(store, client)

	req, err := o.Initiate(10, 1, 2, "256772123456", 1000, momo.ProviderMTN)
	require.NoError(t, err)
	require.NoError(t, o.Execute(context.Background(), req))

	stored, _ := payouts.GetByID(req.ID)
	assert.Equal(t, models.PayoutStatusSuccessful, stored.Status)
	assert.Equal(t, 2, stored.Attempt)
}

func TestExecuteProviderReportedFailure(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX", TotalBudget: budget(1000)})
	client := &scriptedClient{provider: momo.ProviderAirtel, outcomes: []attemptOutcome{
		{status: momo.StatusFailed},
	}}
	o, payouts := newTestOrchestrator(store, client)

	req, err := o.Initiate(10, 1, 2, "701234567", 1000, momo.ProviderAirtel)
	require.NoError(t, err)
	require.Error(t, o.Execute(context.Background(), req))

	stored, _ := payouts.GetByID(req.ID)
	assert.Equal(t, models.PayoutStatusFailed, stored.Status)
	assert.Equal(t, int64(0), store.surveys[1].AmountDisbursed)
}

func TestInitiateValidations(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX"})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{{status: momo.StatusSuccessful}}}
	o, _ := newTestOrchestrator(store, client)

	_, err := o.Initiate(10, 1, 2, "701234567", 1000, momo.ProviderAirtel)
	assert.Error(t, err, "unconfigured provider must be rejected")

	_, err = o.Initiate(10, 1, 2, "256772123456", 0, momo.ProviderMTN)
	assert.Error(t, err, "non-positive amount must be rejected")

	_, err = o.Initiate(10, 99, 2, "256772123456", 1000, momo.ProviderMTN)
	assert.Error(t, err, "unknown survey must be rejected")
}

func TestConcurrentInitiatesNeverOverspend(t *testing.T) {
	store := newMemoryStore(&models.Survey{ID: 1, Currency: "UGX", TotalBudget: budget(3000)})
	client := &scriptedClient{provider: momo.ProviderMTN, outcomes: []attemptOutcome{{status: momo.StatusSuccessful}}}
	o, _ := newTestOrchestrator(store, client)

	const workers = 10
	var wg sync.WaitGroup
	accepted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n uint) {
			defer wg.Done()
			if _, err := o.Initiate(100+n, 1, 2+n, "256772123456", 1000, momo.ProviderMTN); err == nil {
				accepted <- struct{}{}
			}
		}(uint(i))
	}
	wg.Wait()
	close(accepted)

	assert.Len(t, accepted, 3, "only three 1000 payouts fit into a 3000 budget")
	assert.Equal(t, int64(3000), store.surveys[1].AmountDisbursed)
}
