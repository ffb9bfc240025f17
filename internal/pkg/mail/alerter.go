package mail

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/env"
)

// OperatorAlerter emails the operator about payouts that failed terminally.
// Terminal failures mean money was promised and not paid, so a human has to
// look at them.
type OperatorAlerter struct {
	To string
}

// NewOperatorAlerterFromEnv returns an alerter for ALERT_EMAIL, or nil when
// alerting is not configured.
func NewOperatorAlerterFromEnv() *OperatorAlerter {
	to := env.GetEnv("ALERT_EMAIL", "")
	if to == "" {
		return nil
	}
	return &OperatorAlerter{To: to}
}

// PayoutFailed sends the failure notice. Asynchronous and best-effort; a
// broken mail setup must not slow down payout finalization.
func (a *OperatorAlerter) PayoutFailed(req *models.PayoutRequest, reason string) {
	subject := fmt.Sprintf("[SurveyPesa] Payout %d failed", req.ID)
	body := fmt.Sprintf(
		"<p>Payout request <b>%d</b> for response %d failed after %d attempt(s).</p>"+
			"<p>Amount: %d %s via %s<br>Recipient: %s<br>Reference: %s</p>"+
			"<p>Last error: %s</p>",
		req.ID, req.ResponseID, req.Attempt,
		req.Amount, req.Currency, req.Provider, req.RecipientPhone, req.IdempotencyReference,
		reason,
	)

	go func() {
		if err := SendMail(a.To, subject, body); err != nil {
			log.Errorf("[Mail] Failed to send payout alert for request %d: %v", req.ID, err)
		}
	}()
}
