// Package webhook delivers signed, at-most-once-per-event HTTP
// notifications to externally registered endpoints.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/app/repository"
)

const (
	// DeactivateThreshold is the consecutive-failure count at which a
	// registration stops receiving events until its owner re-enables it.
	DeactivateThreshold = 10

	// DefaultDeliveryTimeout is the hard cap per delivery attempt.
	DefaultDeliveryTimeout = 5 * time.Second
)

// Dispatcher fans one event out to every active, subscribed registration of
// a survey. Deliveries are concurrent and independent; one endpoint's
// failure never affects another's delivery or the caller.
type Dispatcher struct {
	registrations repository.WebhookRepository
	client        *http.Client
	timeout       time.Duration
}

// NewDispatcher creates a dispatcher with the default delivery timeout.
func NewDispatcher(registrations repository.WebhookRepository) *Dispatcher {
	return NewDispatcherWithTimeout(registrations, DefaultDeliveryTimeout)
}

// NewDispatcherWithTimeout creates a dispatcher with a custom per-delivery
// timeout (tests use short ones).
func NewDispatcherWithTimeout(registrations repository.WebhookRepository, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registrations: registrations,
		client:        &http.Client{},
		timeout:       timeout,
	}
}

// Dispatch delivers one event to all matching registrations of the survey
// and blocks until every delivery settled. It never returns an error: all
// delivery failures are converted into registration-state updates. Callers
// on a request path run it in a goroutine.
func (d *Dispatcher) Dispatch(surveyID uint, eventType string, payload map[string]interface{}) {
	regs, err := d.registrations.ListActiveBySurvey(surveyID)
	if err != nil {
		log.Errorf("[Webhook] Failed to load registrations for survey %d: %v", surveyID, err)
		return
	}

	var wg sync.WaitGroup
	for i := range regs {
		reg := regs[i]
		if !reg.SubscribesTo(eventType) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("[Webhook] Delivery to registration %d panicked: %v", reg.ID, r)
				}
			}()
			d.deliver(&reg, eventType, payload)
		}()
	}
	wg.Wait()
}

// deliver performs one delivery attempt. A completed HTTP response counts as
// delivered regardless of status code; only transport-level failures feed
// the deactivation counter.
func (d *Dispatcher) deliver(reg *models.WebhookRegistration, eventType string, payload map[string]interface{}) {
	body, err := CanonicalBody(eventType, payload, time.Now(), strconv.FormatUint(uint64(reg.ID), 10))
	if err != nil {
		log.Errorf("[Webhook] Failed to encode body for registration %d: %v", reg.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		d.recordFailure(reg, models.WebhookStatusNetworkError)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	if reg.HasSecret() {
		req.Header.Set(SignatureHeader, Sign(body, reg.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// Timeouts are tagged 408 for diagnostics but count toward
		// deactivation like any other delivery failure.
		status := models.WebhookStatusNetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			status = models.WebhookStatusTimeout
		}
		d.recordFailure(reg, status)
		return
	}
	defer resp.Body.Close()

	if err := d.registrations.RecordSuccess(reg.ID, resp.StatusCode, time.Now()); err != nil {
		log.Errorf("[Webhook] Failed to record delivery for registration %d: %v", reg.ID, err)
	}
}

func (d *Dispatcher) recordFailure(reg *models.WebhookRegistration, status int) {
	deactivated, err := d.registrations.RecordFailure(reg.ID, status, time.Now(), DeactivateThreshold)
	if err != nil {
		log.Errorf("[Webhook] Failed to record failure for registration %d: %v", reg.ID, err)
		return
	}
	if deactivated {
		log.Warnf("[Webhook] Registration %d deactivated after %d consecutive failures", reg.ID, DeactivateThreshold)
	}
}
